package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

// azureCredentialProvider adapts an azcore.TokenCredential to the
// sheetflow.TokenProvider interface, requesting Graph-scoped tokens.
type azureCredentialProvider struct {
	credential azcore.TokenCredential
	desc       string
}

func (p *azureCredentialProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{sheetflow.GraphScope},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s token acquisition failed: %v: %w", p.desc, err, sheetflow.ErrAuth)
	}
	return token.Token, token.ExpiresOn, nil
}

func (p *azureCredentialProvider) String() string {
	return p.desc
}

// NewClientSecretProvider creates a token provider for service principal
// authentication. All three parameters are required. This is the credential
// for unattended runs.
func NewClientSecretProvider(tenantID, clientID, clientSecret string) (sheetflow.TokenProvider, error) {
	if tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("client secret auth requires tenant id, client id, and client secret: %w", sheetflow.ErrInvalidConfig)
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create client secret credential: %v: %w", err, sheetflow.ErrAuth)
	}

	return &azureCredentialProvider{
		credential: cred,
		desc:       fmt.Sprintf("ClientSecret(tenant=%s, client=%s)", tenantID, clientID),
	}, nil
}

// NewDeviceCodeProvider creates a token provider that drives the interactive
// device-code flow. The user prompt (URL plus one-time code) is surfaced
// through the logger; token acquisition blocks until the user completes the
// out-of-band step or ctx is cancelled.
func NewDeviceCodeProvider(tenantID, clientID string, logger sheetflow.Logger) (sheetflow.TokenProvider, error) {
	if tenantID == "" || clientID == "" {
		return nil, fmt.Errorf("device code auth requires tenant id and client id: %w", sheetflow.ErrInvalidConfig)
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	cred, err := azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
		TenantID: tenantID,
		ClientID: clientID,
		UserPrompt: func(_ context.Context, msg azidentity.DeviceCodeMessage) error {
			logger.Info("%s", msg.Message)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create device code credential: %v: %w", err, sheetflow.ErrAuth)
	}

	return &azureCredentialProvider{
		credential: cred,
		desc:       fmt.Sprintf("DeviceCode(tenant=%s, client=%s)", tenantID, clientID),
	}, nil
}

// NewDefaultCredentialProvider uses Azure's default credential chain
// (environment, workload identity, managed identity, CLI).
func NewDefaultCredentialProvider() (sheetflow.TokenProvider, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create default credential: %v: %w", err, sheetflow.ErrAuth)
	}
	return &azureCredentialProvider{credential: cred, desc: "DefaultCredential"}, nil
}

// StaticTokenProvider serves a fixed token. Intended for tests and for
// environments where a token is provisioned externally.
type StaticTokenProvider struct {
	Token string
}

func (p *StaticTokenProvider) GetToken(context.Context) (string, time.Time, error) {
	if p.Token == "" {
		return "", time.Time{}, fmt.Errorf("static token is empty: %w", sheetflow.ErrAuth)
	}
	// No known expiry; report far-future so the client does not refresh.
	return p.Token, time.Now().Add(24 * time.Hour), nil
}

func (p *StaticTokenProvider) String() string {
	return "StaticToken"
}
