package handler_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkx401/pulse/dashboard"
	"github.com/zkx401/pulse/pkg/clock/clocktest"
	"github.com/zkx401/pulse/web/api"
	"github.com/zkx401/pulse/web/handler"
)

func TestActivities(t *testing.T) {
	t.Parallel()

	t.Run("it pages newest first with navigation links", func(t *testing.T) {
		t.Parallel()

		// Arrange
		mux := newMux(handler.NewActivities(activitiesStore(25)))

		// Act
		rec := serve(mux, http.MethodGet, "/api/activities?per_page=10&page=2", nil)

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ActivitiesResponse](t, rec)
		assert.Equal(t, 25, resp.Total)
		assert.Equal(t, uint64(2), resp.Page)
		assert.Equal(t, uint64(10), resp.PerPage)
		require.Len(t, resp.Data, 10)
		assert.Equal(t, "a-15", resp.Data[0].ID)
		assert.Equal(t, "a-06", resp.Data[9].ID)
		assert.Equal(t,
			`</api/activities?page=1&per_page=10>; rel="prev", </api/activities?page=3&per_page=10>; rel="next"`,
			rec.Header().Get("Link"))
	})

	t.Run("it omits the next link on the last page", func(t *testing.T) {
		t.Parallel()

		mux := newMux(handler.NewActivities(activitiesStore(25)))

		rec := serve(mux, http.MethodGet, "/api/activities?per_page=10&page=3", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[api.ActivitiesResponse](t, rec).Data, 5)
		assert.Equal(t, `</api/activities?page=2&per_page=10>; rel="prev"`, rec.Header().Get("Link"))
	})

	t.Run("it answers an empty page far past the end", func(t *testing.T) {
		t.Parallel()

		mux := newMux(handler.NewActivities(activitiesStore(25)))

		rec := serve(mux, http.MethodGet, "/api/activities?per_page=4&page=4611686018427387905", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ActivitiesResponse](t, rec)
		assert.Empty(t, resp.Data)
		assert.Equal(t, uint64(4611686018427387905), resp.Page)
		assert.Equal(t, `</api/activities?page=4611686018427387904&per_page=4>; rel="prev"`, rec.Header().Get("Link"))
	})

	t.Run("it keeps filters in the navigation links", func(t *testing.T) {
		t.Parallel()

		mux := newMux(handler.NewActivities(activitiesStore(25)))

		rec := serve(mux, http.MethodGet, "/api/activities?type=proof&per_page=5", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `</api/activities?page=2&per_page=5&type=proof>; rel="next"`, rec.Header().Get("Link"))
	})

	t.Run("it filters by kind and amount", func(t *testing.T) {
		t.Parallel()

		// Arrange
		mux := newMux(handler.NewActivities(activitiesStore(25)))

		// Act
		rec := serve(mux, http.MethodGet, "/api/activities?type=proof&min_amount=100", nil)

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ActivitiesResponse](t, rec)
		assert.Equal(t, 8, resp.Total)
		for _, a := range resp.Data {
			assert.Equal(t, dashboard.KindProof, a.Type)
			assert.GreaterOrEqual(t, a.Amount(), 100.0)
		}
		assert.Empty(t, rec.Header().Get("Link"))
	})

	t.Run("it sorts by amount ascending", func(t *testing.T) {
		t.Parallel()

		mux := newMux(handler.NewActivities(activitiesStore(25)))

		rec := serve(mux, http.MethodGet, "/api/activities?sort=amount&direction=asc&per_page=3", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assertActivityIDs(t, decode[api.ActivitiesResponse](t, rec).Data, "a-01", "a-02", "a-03")
	})

	t.Run("it searches messages and counts the query", func(t *testing.T) {
		t.Parallel()

		// Arrange
		recorder := &fakeRecorder{}
		mux := newMux(handler.NewActivities(activitiesStore(25), handler.WithRecorder(recorder)))

		// Act
		rec := serve(mux, http.MethodGet, "/api/activities?q=zkpay", nil)

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ActivitiesResponse](t, rec)
		assert.Equal(t, 8, resp.Total)
		for _, a := range resp.Data {
			assert.Equal(t, "ZKPay", a.Facilitator())
		}
		assert.Equal(t, []string{"activities"}, recorder.searched())
	})

	t.Run("it suggests close values when nothing matches", func(t *testing.T) {
		t.Parallel()

		mux := newMux(handler.NewActivities(activitiesStore(25)))

		rec := serve(mux, http.MethodGet, "/api/activities?q=proff", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[api.ActivitiesResponse](t, rec)
		assert.Zero(t, resp.Total)
		assert.Contains(t, resp.DidYouMean, "proof")
	})

	t.Run("it picks up a replaced activity list", func(t *testing.T) {
		t.Parallel()

		// Arrange
		store := activitiesStore(25)
		mux := newMux(handler.NewActivities(store))
		first := decode[api.ActivitiesResponse](t, serve(mux, http.MethodGet, "/api/activities", nil))

		state := aState(2)
		state.Activities = activities(30)
		state.LastUpdated = clocktest.Epoch.Add(time.Minute)
		store.mu.Lock()
		store.state = state
		store.mu.Unlock()

		// Act
		second := decode[api.ActivitiesResponse](t, serve(mux, http.MethodGet, "/api/activities", nil))

		// Assert
		assert.Equal(t, 25, first.Total)
		assert.Equal(t, 30, second.Total)
	})

	t.Run("it rejects invalid parameters", func(t *testing.T) {
		t.Parallel()

		mux := newMux(handler.NewActivities(activitiesStore(25)))

		rec := serve(mux, http.MethodGet, "/api/activities?per_page=500", nil)

		assertAPIError(t, rec, http.StatusBadRequest, "invalid per_page parameter")
	})
}

// Domain-specific test builders
// -----------------------------

var facilitatorCycle = []string{"ZKPay", "Alpha Route", "Nimbus"}

// activities builds n records, newest first. Record i is proof when i is
// even, carries amount 10*i and cycles through three facilitators.
func activities(n int) []dashboard.Activity {
	out := make([]dashboard.Activity, 0, n)
	for i := n; i >= 1; i-- {
		kind := dashboard.KindTransaction
		if i%2 == 0 {
			kind = dashboard.KindProof
		}
		facilitator := facilitatorCycle[i%3]
		out = append(out, dashboard.Activity{
			ID:        fmt.Sprintf("a-%02d", i),
			Type:      kind,
			Message:   fmt.Sprintf("Payment of $%d via %s", i*10, facilitator),
			Timestamp: clocktest.Epoch.Add(time.Duration(i) * time.Minute),
			Metadata:  &dashboard.Metadata{Amount: float64(i * 10), Facilitator: facilitator},
		})
	}
	return out
}

func activitiesStore(n int) *stubSnapshotStore {
	state := aState(1)
	state.Activities = activities(n)
	return &stubSnapshotStore{state: state}
}

// Domain-specific assertions
// --------------------------

func assertActivityIDs(t *testing.T, got []dashboard.Activity, want ...string) {
	t.Helper()

	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, want, ids)
}
