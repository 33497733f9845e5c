package marketdata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/portfolio-engine/fixedincome"
	"github.com/warp/portfolio-engine/marketdata"
)

// =============================================================================
// BCB SGS CLIENT
// =============================================================================

func bcbServer(t *testing.T, selicBody, ipcaBody string, ipcaStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "bcdata.sgs.1178"):
			w.Write([]byte(selicBody))
		case strings.Contains(r.URL.Path, "bcdata.sgs.433"):
			if ipcaStatus != http.StatusOK {
				w.WriteHeader(ipcaStatus)
				return
			}
			w.Write([]byte(ipcaBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestBCB_Snapshot_ParsesSelicAndDerivesInterbank(t *testing.T) {
	srv := bcbServer(t,
		`[{"data":"30/01/2024","valor":"10,75"}]`,
		`[{"data":"01/01/2024","valor":"0,42"},{"data":"01/02/2024","valor":"0,83"}]`,
		http.StatusOK,
	)
	defer srv.Close()

	client := marketdata.NewBCBClient(marketdata.BCBConfig{BaseURL: srv.URL})
	snap, err := client.Snapshot(context.Background(),
		fixedincome.NewDate(2024, time.January, 1),
		fixedincome.NewDate(2024, time.March, 1),
	)
	require.NoError(t, err)

	require.NotNil(t, snap.ShortRate)
	assert.Equal(t, "0.1075", snap.ShortRate.String())
	require.NotNil(t, snap.InterbankRate)
	assert.Equal(t, "0.1065", snap.InterbankRate.String())

	require.Len(t, snap.Inflation, 2)
	assert.True(t, snap.Inflation[0].Month.Equal(fixedincome.NewDate(2024, time.January, 1)))
	assert.Equal(t, "0.0042", snap.Inflation[0].Value.String())
	assert.Equal(t, "0.0083", snap.Inflation[1].Value.String())
}

func TestBCB_Snapshot_IPCANotPublished_EmptySeries(t *testing.T) {
	// SGS answers 404 for ranges with no observations; that is "not yet
	// available", not an error.
	srv := bcbServer(t, `[{"data":"30/01/2024","valor":"10,75"}]`, "", http.StatusNotFound)
	defer srv.Close()

	client := marketdata.NewBCBClient(marketdata.BCBConfig{BaseURL: srv.URL})
	snap, err := client.Snapshot(context.Background(),
		fixedincome.NewDate(2026, time.August, 1),
		fixedincome.NewDate(2026, time.August, 30),
	)
	require.NoError(t, err)
	assert.NotNil(t, snap.ShortRate)
	assert.Empty(t, snap.Inflation)
}

func TestBCB_Snapshot_SelicDown_FieldAbsent(t *testing.T) {
	// GIVEN: The Selic series errors but IPCA answers
	// WHEN: Fetching a snapshot
	// THEN: ShortRate and InterbankRate are absent; never zero

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bcdata.sgs.1178") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"data":"01/01/2024","valor":"0,42"}]`))
	}))
	defer srv.Close()

	client := marketdata.NewBCBClient(marketdata.BCBConfig{BaseURL: srv.URL})
	snap, err := client.Snapshot(context.Background(),
		fixedincome.NewDate(2024, time.January, 1),
		fixedincome.NewDate(2024, time.February, 1),
	)
	require.NoError(t, err)
	assert.Nil(t, snap.ShortRate)
	assert.Nil(t, snap.InterbankRate)
	require.Len(t, snap.Inflation, 1)
}
