package cart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartsvc "github.com/unibazzar/unibazzar-cart/internal/cart"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
)

type recordingStore struct {
	Store
	removed   []cartsvc.ItemID
	decreased []cartsvc.ItemID
}

func (r *recordingStore) Remove(_ context.Context, id cartsvc.ItemID) cartsvc.State {
	r.removed = append(r.removed, id)
	return cartsvc.Empty()
}

func (r *recordingStore) Decrease(_ context.Context, id cartsvc.ItemID) cartsvc.State {
	r.decreased = append(r.decreased, id)
	return cartsvc.Empty()
}

func route(store Store) http.Handler {
	r := chi.NewRouter()
	r.Delete("/items/{itemId}", CartRemoveItem(store, logger.Nop()))
	r.Post("/items/{itemId}/decrease", CartDecreaseItem(store, logger.Nop()))
	return r
}

func TestItemCommandsUnescapeIDs(t *testing.T) {
	store := &recordingStore{}
	h := route(store)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/items/sku%2F42", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/items/7/decrease", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []cartsvc.ItemID{"sku/42"}, store.removed)
	assert.Equal(t, []cartsvc.ItemID{"7"}, store.decreased)
}

func TestItemCommandsDecodePercentOnce(t *testing.T) {
	store := &recordingStore{}
	h := route(store)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/items/50%25", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/items/a%2541", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/items/50%25/decrease", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []cartsvc.ItemID{"50%", "a%41"}, store.removed)
	assert.Equal(t, []cartsvc.ItemID{"50%"}, store.decreased)
}

func TestItemCommandsRejectBlankID(t *testing.T) {
	store := &recordingStore{}
	h := route(store)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/items/%20", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.removed)
}

func TestHandlersWithoutStore(t *testing.T) {
	w := httptest.NewRecorder()
	CartFetch(nil, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
