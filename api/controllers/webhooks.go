package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/garword/topupid-backend/api/responses"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// Signature header names, one per caller that signs deliveries.
const (
	paygateSignatureHeader   = "X-Callback-Signature"
	digiflazzSignatureHeader = "X-Hub-Signature"
	sosmedSignatureHeader    = "X-Signature"
)

type paygateWebhookService interface {
	Handle(ctx context.Context, raw []byte, signature string) error
}

type signedWebhookService interface {
	Handle(ctx context.Context, raw []byte, signature string) error
}

type bodyWebhookService interface {
	Handle(ctx context.Context, raw []byte) error
}

// PaygateWebhook accepts QRIS payment gateway callbacks.
func PaygateWebhook(svc paygateWebhookService, logg *logger.Logger) http.HandlerFunc {
	return signedWebhookHandler(svc, logg, paygateSignatureHeader)
}

// DigiflazzWebhook accepts digiflazz transaction callbacks.
func DigiflazzWebhook(svc signedWebhookService, logg *logger.Logger) http.HandlerFunc {
	return signedWebhookHandler(svc, logg, digiflazzSignatureHeader)
}

// SosmedWebhook accepts engagement panel callbacks.
func SosmedWebhook(svc signedWebhookService, logg *logger.Logger) http.HandlerFunc {
	return signedWebhookHandler(svc, logg, sosmedSignatureHeader)
}

// GamestoreWebhook accepts gamestore transaction callbacks. The signature
// rides inside the payload, so only the raw body is handed down.
func GamestoreWebhook(svc bodyWebhookService, logg *logger.Logger) http.HandlerFunc {
	return bodyWebhookHandler(svc, logg)
}

// VirtusimWebhook accepts virtusim order callbacks.
func VirtusimWebhook(svc bodyWebhookService, logg *logger.Logger) http.HandlerFunc {
	return bodyWebhookHandler(svc, logg)
}

func signedWebhookHandler(svc signedWebhookService, logg *logger.Logger, header string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if err := svc.Handle(ctx, raw, r.Header.Get(header)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func bodyWebhookHandler(svc bodyWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if err := svc.Handle(ctx, raw); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
