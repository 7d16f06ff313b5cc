package config_test

import (
	"strings"
	"testing"

	"github.com/alpyxn/moviestar/internal/config"
)

func TestConfig_GetServiceURLs(t *testing.T) {
	tests := []struct {
		name        string
		environment config.Environment
		wantAPIURL  string
		wantIssuer  string
	}{
		{
			name:        "Local environment returns localhost URLs",
			environment: config.Local,
			wantAPIURL:  "http://localhost:8081/api",
			wantIssuer:  "http://localhost:8180/realms/moviestar",
		},
		{
			name:        "NonProd environment returns Kubernetes internal URLs",
			environment: config.NonProd,
			wantAPIURL:  "http://moviestar-api.moviestar.svc.cluster.local:8080/api",
			wantIssuer:  "http://keycloak.identity.svc.cluster.local:8080/realms/moviestar",
		},
		{
			name:        "Prod environment returns Kubernetes internal URLs",
			environment: config.Prod,
			wantAPIURL:  "http://moviestar-api.moviestar.svc.cluster.local:8080/api",
			wantIssuer:  "http://keycloak.identity.svc.cluster.local:8080/realms/moviestar",
		},
		{
			name:        "Empty/unrecognized environment defaults to Local",
			environment: config.Environment("UNKNOWN"),
			wantAPIURL:  "http://localhost:8081/api",
			wantIssuer:  "http://localhost:8180/realms/moviestar",
		},
		{
			name:        "Empty string environment defaults to Local",
			environment: config.Environment(""),
			wantAPIURL:  "http://localhost:8081/api",
			wantIssuer:  "http://localhost:8180/realms/moviestar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Environment: config.EnvironmentConfig{
					Environment: tt.environment,
				},
			}

			urls := cfg.GetServiceURLs()

			if urls.CatalogAPIBaseURL != tt.wantAPIURL {
				t.Errorf("GetServiceURLs().CatalogAPIBaseURL = %v, want %v",
					urls.CatalogAPIBaseURL, tt.wantAPIURL)
			}
			if urls.IdentityIssuerURL != tt.wantIssuer {
				t.Errorf("GetServiceURLs().IdentityIssuerURL = %v, want %v",
					urls.IdentityIssuerURL, tt.wantIssuer)
			}
		})
	}
}

func TestServiceURLs_LocalVsCluster(t *testing.T) {
	localURLs := (&config.Config{
		Environment: config.EnvironmentConfig{Environment: config.Local},
	}).GetServiceURLs()
	nonProdURLs := (&config.Config{
		Environment: config.EnvironmentConfig{Environment: config.NonProd},
	}).GetServiceURLs()

	if !strings.Contains(nonProdURLs.CatalogAPIBaseURL, "cluster.local") {
		t.Errorf("NonProd environment should use Kubernetes internal DNS, got %s", nonProdURLs.CatalogAPIBaseURL)
	}

	if localURLs.CatalogAPIBaseURL == nonProdURLs.CatalogAPIBaseURL {
		t.Error("Local and NonProd URLs should be different")
	}
}
