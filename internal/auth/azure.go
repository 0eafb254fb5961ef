package auth

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// AzureCredential adapts an Azure identity credential (managed identity,
// workload identity, CLI login, ...) to CredentialSource.
type AzureCredential struct {
	cred azcore.TokenCredential
}

// NewDefaultAzureCredential uses the default Azure credential chain.
func NewDefaultAzureCredential() (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	return &AzureCredential{cred: cred}, nil
}

func NewAzureCredential(cred azcore.TokenCredential) *AzureCredential {
	return &AzureCredential{cred: cred}
}

func (a *AzureCredential) GetToken(ctx context.Context, audience string) (AccessToken, error) {
	tok, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{audience + ".default"},
	})
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}
