package webhooks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garword/topupid-backend/internal/providers/gamestore"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/config"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
)

type fakeReconciler struct {
	events   []reconcile.Event
	applyErr error
}

func (f *fakeReconciler) Apply(_ context.Context, event reconcile.Event) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.events = append(f.events, event)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhooks-test"})
}

func TestDigiflazzHandle(t *testing.T) {
	reconciler := &fakeReconciler{}
	cfg := config.DigiflazzConfig{Username: "user", APIKey: "df-key"}
	svc, err := NewDigiflazzService(testLogger(), cfg, reconciler, metrics.NewWebhookMetrics(nil))
	require.NoError(t, err)

	raw := []byte(`{"data":{"ref_id":"INV-1-item","trx_id":"TRX-7","status":"Sukses","sn":"SN-99","message":"ok"}}`)
	sig := "sha1=" + hmacSHA1Hex("df-key", raw)

	require.NoError(t, svc.Handle(context.Background(), raw, sig))
	require.Len(t, reconciler.events, 1)
	event := reconciler.events[0]
	assert.Equal(t, "INV-1-item", event.RefID)
	assert.Equal(t, enums.ProviderStatusSuccess, event.Status)
	assert.Equal(t, "SN-99", event.Serial)
	assert.Equal(t, "TRX-7", event.ProviderTrxID)

	err = svc.Handle(context.Background(), raw, "sha1=deadbeef")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
	assert.Len(t, reconciler.events, 1)
}

func TestDigiflazzHandleUnknownStatusStaysProcessing(t *testing.T) {
	reconciler := &fakeReconciler{}
	cfg := config.DigiflazzConfig{Username: "user", APIKey: "df-key"}
	svc, err := NewDigiflazzService(testLogger(), cfg, reconciler, metrics.NewWebhookMetrics(nil))
	require.NoError(t, err)

	raw := []byte(`{"data":{"ref_id":"INV-2-item","status":"Antrian"}}`)
	require.NoError(t, svc.Handle(context.Background(), raw, hmacSHA1Hex("df-key", raw)))
	require.Len(t, reconciler.events, 1)
	assert.Equal(t, enums.ProviderStatusProcessing, reconciler.events[0].Status)
}

func TestGamestoreHandle(t *testing.T) {
	reconciler := &fakeReconciler{}
	cfg := config.GamestoreConfig{MerchantID: "M123", Secret: "gs-secret"}
	svc, err := NewGamestoreService(testLogger(), cfg, reconciler, metrics.NewWebhookMetrics(nil))
	require.NoError(t, err)

	sig := gamestore.Sign("M123", "gs-secret", "INV-3-item")
	raw := []byte(fmt.Sprintf(`{"ref_id":"INV-3-item","trx_id":"G-1","status":"Gagal","message":"out of stock","signature":"%s"}`, sig))

	require.NoError(t, svc.Handle(context.Background(), raw))
	require.Len(t, reconciler.events, 1)
	assert.Equal(t, enums.ProviderStatusFailed, reconciler.events[0].Status)

	tampered := []byte(`{"ref_id":"INV-3-item","status":"Sukses","signature":"bogus"}`)
	err = svc.Handle(context.Background(), tampered)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
	assert.Len(t, reconciler.events, 1)
}

func TestSosmedHandleCarriesCounters(t *testing.T) {
	reconciler := &fakeReconciler{}
	cfg := config.SosmedConfig{APIID: "1001", APIKey: "sm-key"}
	svc, err := NewSosmedService(testLogger(), cfg, reconciler, metrics.NewWebhookMetrics(nil))
	require.NoError(t, err)

	raw := []byte(`{"custom_id":"INV-4-item","order_id":"SM-55","status":"Partial","start_count":5000,"remains":300}`)
	sig := "sha256=" + hmacSHA256Hex("sm-key", raw)

	require.NoError(t, svc.Handle(context.Background(), raw, sig))
	require.Len(t, reconciler.events, 1)
	event := reconciler.events[0]
	assert.Equal(t, "INV-4-item", event.RefID)
	assert.Equal(t, enums.ProviderStatusPartial, event.Status)
	require.NotNil(t, event.StartCount)
	assert.Equal(t, 5000, *event.StartCount)
	require.NotNil(t, event.Remains)
	assert.Equal(t, 300, *event.Remains)
}

func TestVirtusimHandle(t *testing.T) {
	reconciler := &fakeReconciler{}
	cfg := config.VirtusimConfig{APIKey: "vs-key"}
	svc, err := NewVirtusimService(testLogger(), cfg, reconciler, metrics.NewWebhookMetrics(nil))
	require.NoError(t, err)

	raw := []byte(`{"api_key":"vs-key","ref_id":"INV-5-item","order_id":"VS-9","status":"Completed","number":"+628123","sms":"Your code is 4242"}`)
	require.NoError(t, svc.Handle(context.Background(), raw))
	require.Len(t, reconciler.events, 1)
	event := reconciler.events[0]
	assert.Equal(t, enums.ProviderStatusSuccess, event.Status)
	assert.Equal(t, "Your code is 4242", event.Serial)

	wrongKey := []byte(`{"api_key":"stolen","ref_id":"INV-5-item","status":"Completed"}`)
	err = svc.Handle(context.Background(), wrongKey)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized))
	assert.Len(t, reconciler.events, 1)
}

func TestUnknownRefIsAcknowledged(t *testing.T) {
	reconciler := &fakeReconciler{applyErr: pkgerrors.New(pkgerrors.CodeNotFound, "no order item for ref X")}
	cfg := config.DigiflazzConfig{Username: "user", APIKey: "df-key"}
	svc, err := NewDigiflazzService(testLogger(), cfg, reconciler, metrics.NewWebhookMetrics(nil))
	require.NoError(t, err)

	raw := []byte(`{"data":{"ref_id":"ghost-ref","status":"Sukses"}}`)
	assert.NoError(t, svc.Handle(context.Background(), raw, hmacSHA1Hex("df-key", raw)))
}
