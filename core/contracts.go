package core

import (
	"context"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives the operation counters and duration histograms
// emitted by Observer. Tags are copied before each call.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// discardMetrics is the recorder used when a client is built without one.
type discardMetrics struct{}

func (discardMetrics) IncCounter(context.Context, string, int64, map[string]string) {}

func (discardMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Identity is the signed-in account as reported by the identity provider.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}

func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.ID) == ""
}

// ExternalCredential carries a third-party identity token (Apple) together
// with the raw nonce that was hashed into the authorization request.
type ExternalCredential struct {
	Provider string
	IDToken  string
	RawNonce string
}

// IdentityProvider is the boundary to the external authentication service.
// Implementations must be safe for concurrent use.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (Identity, bool)
	MintToken(ctx context.Context) (string, error)
	SignIn(ctx context.Context, email string, password string) (Identity, error)
	CreateAccount(ctx context.Context, email string, password string) (Identity, error)
	SignInWithExternalCredential(ctx context.Context, credential ExternalCredential) (Identity, error)
	OnIdentityChanged(listener func(Identity)) (cancel func())
}

// Pacer delays outgoing requests; Wait blocks until a request may be sent.
type Pacer interface {
	Wait(ctx context.Context) error
}

type PersistedRecord struct {
	Key    string
	Fields map[string]any
}

// RecordPersister stores normalized cache records outside the process.
type RecordPersister interface {
	LoadRecords(ctx context.Context) ([]PersistedRecord, error)
	SaveRecords(ctx context.Context, records []PersistedRecord) error
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}
