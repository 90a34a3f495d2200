package firestore

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

func TestNotFound(t *testing.T) {
	other := status.Error(codes.Unavailable, "backend down")
	plain := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"grpc not found", status.Error(codes.NotFound, "no document"), domain.ErrTokenNotFound},
		{"other grpc code", other, other},
		{"plain error", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := notFound(tt.in); !errors.Is(got, tt.want) {
				t.Errorf("notFound(%v) = %v; want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCredentialSource(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  credentialSource
	}{
		{"none", Credentials{ProjectID: "p"}, sourceDefault},
		{"file only", Credentials{File: "firebase-config.json"}, sourceFile},
		{"json only", Credentials{JSON: `{"type":"service_account"}`}, sourceJSON},
		{"file wins over json", Credentials{File: "firebase-config.json", JSON: `{}`}, sourceFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.source(); got != tt.want {
				t.Errorf("source() = %d; want %d", got, tt.want)
			}
		})
	}
}
