package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apivaluation "sotp_valuation/pkg/api/valuation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the valuation as a read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		in, opts, err := prepare(ctx)
		if err != nil {
			return err
		}
		h, err := apivaluation.NewHandler(in.Filing, in.Scenarios, opts.Normalize)
		if err != nil {
			return err
		}
		h.Peers = in.Peers
		h.CAPMWACC = opts.CAPMWACC

		mux := http.NewServeMux()
		h.Register(mux)
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		})

		addr, _ := cmd.Flags().GetString("addr")
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		fmt.Printf("[API] %s valuation on %s\n", in.Filing.Ticker, addr)
		fmt.Println("  GET /api/valuation/scenarios?scenario=&multiple.<segment>=&cap_rate=")
		fmt.Println("  GET /api/valuation/sensitivity?scenario=")
		fmt.Println("  GET /api/valuation/football-field")
		fmt.Println("  GET /api/valuation/normalization")

		go func() {
			<-ctx.Done()
			shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdown)
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Println("[API] server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
}
