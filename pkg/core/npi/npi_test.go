package npi

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sotp_valuation/pkg/models"
)

const forestView = `{"result_count":1,"results":[{
  "number":1234567893,
  "basic":{"organization_name":"FOREST VIEW PSYCHIATRIC HOSPITAL, INC.","status":"A"},
  "other_names":[{"type":"Doing Business As","code":"3","organization_name":"FOREST VIEW HOSPITAL"}],
  "taxonomies":[
    {"code":"261QM0801X","desc":"Clinic/Center, Mental Health","primary":false,"state":"MI"},
    {"code":"283Q00000X","desc":"Psychiatric Hospital","primary":true,"state":"MI"}],
  "addresses":[
    {"address_purpose":"MAILING","address_1":"PO BOX 61558","city":"KING OF PRUSSIA","state":"PA","postal_code":"19406","telephone_number":"610-768-3300"},
    {"address_purpose":"LOCATION","address_1":"1055 MEDICAL PARK DR SE","address_2":"","city":"GRAND RAPIDS","state":"MI","postal_code":"495462338","telephone_number":"616-942-9610"}]
}]}`

const emptyResults = `{"result_count":0,"results":[]}`

func testClient() *Client {
	return NewClient(Config{RequestsPerSecond: 1000})
}

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func registerRegistry(t *testing.T) {
	t.Helper()
	httpmock.RegisterResponder("GET", DefaultBaseURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "2.1", q.Get("version"))
		assert.Equal(t, "NPI-2", q.Get("enumeration_type"))

		switch q.Get("organization_name") {
		case "Forest View":
			return httpmock.NewStringResponse(http.StatusOK, forestView), nil
		case "Broken", "Broken Hospital":
			return httpmock.NewStringResponse(http.StatusInternalServerError, "oops"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, emptyResults), nil
	})
}

func TestNameVariations(t *testing.T) {
	got := NameVariations("Del Amo  Behavioral Health Center")
	assert.Equal(t, []string{
		"Del Amo Behavioral Health Center",
		"Del Amo Center",
		"Del Amo Behavioral Health",
		"Del",
	}, got)
	assert.Nil(t, NameVariations("   "))
}

func TestNameVariations_NonASCIICase(t *testing.T) {
	got := NameVariations("İstanbul Hospital")
	assert.Equal(t, []string{"İstanbul Hospital", "İstanbul"}, got)

	// U+212A KELVIN SIGN lowercases to a shorter ASCII k.
	assert.NotPanics(t, func() {
		got = NameVariations("\u212Aings View Center")
	})
	assert.Equal(t, []string{"\u212Aings View Center", "\u212Aings View", "\u212Aings"}, got)
}

func TestBestMatch(t *testing.T) {
	uhs := Provider{}
	uhs.Basic.OrganizationName = "UHS OF DELAWARE INC"
	valley := Provider{OtherNames: []OtherName{{Type: "DBA", OrganizationName: "Valley Hospital Medical Center"}}}
	valley.Basic.OrganizationName = "VALLEY HEALTH SYSTEM LLC"
	candidates := []Provider{uhs, valley}

	assert.Equal(t, "VALLEY HEALTH SYSTEM LLC", BestMatch("Valley Hospital", candidates).Basic.OrganizationName)
	assert.Equal(t, "VALLEY HEALTH SYSTEM LLC", BestMatch("Valley Regional", candidates).Basic.OrganizationName)
	assert.Equal(t, "UHS OF DELAWARE INC", BestMatch("Zeta Clinic", candidates).Basic.OrganizationName)
	assert.Equal(t, "Valley Hospital Medical Center", valley.DBA())
	assert.Equal(t, "UHS OF DELAWARE INC", uhs.DBA())
}

func TestLookup_FallsBackThroughVariations(t *testing.T) {
	setupHTTPMock(t)
	registerRegistry(t)

	c := testClient()
	f := models.Facility{Name: "Forest View Hospital", City: "Grand Rapids", State: "MI"}
	m := c.Lookup(context.Background(), f)

	require.True(t, m.Found())
	assert.Equal(t, "1234567893", m.NPI)
	assert.Equal(t, "FOREST VIEW HOSPITAL", m.DBA)
	assert.Equal(t, "Psychiatric Hospital", m.Taxonomy)
	assert.Equal(t, "616-942-9610", m.Phone)
	assert.Equal(t, "1055 MEDICAL PARK DR SE, GRAND RAPIDS, MI 49546", m.Address)
	assert.Equal(t, 1, m.Candidates)
	assert.Equal(t, "Forest View", m.Query)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())

	// Second lookup is served from cache.
	c.Lookup(context.Background(), f)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestBatch(t *testing.T) {
	setupHTTPMock(t)
	registerRegistry(t)

	facs := []models.Facility{
		{Name: "Broken Hospital", City: "Nowhere", State: "NV"},
		{Name: "Forest View Hospital", City: "Grand Rapids", State: "MI"},
		{Name: "Quiet Pines", City: "Ocala", State: "FL"},
	}
	ccn, err := ReadCCNDirectory(strings.NewReader("Facility,CCN\nForest View Hospital,234029\n"))
	require.NoError(t, err)

	matches, err := testClient().Batch(context.Background(), facs, ccn)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, NotFound, matches[0].NPI)
	assert.Contains(t, matches[0].Notes, "status 500")
	assert.Equal(t, "234029", matches[1].CCN)
	assert.Equal(t, NotFound, matches[2].NPI)
	assert.Equal(t, "NPI not found", matches[2].Notes)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, matches))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Facility,City,State,Country,NPI,DBA"))
	assert.True(t, strings.HasSuffix(lines[2], ",234029,,1"))
}

func TestBatch_Cancelled(t *testing.T) {
	setupHTTPMock(t)
	registerRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	matches, err := testClient().Batch(ctx, []models.Facility{{Name: "Forest View Hospital"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, matches)
}
