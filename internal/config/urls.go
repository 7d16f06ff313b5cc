package config

// ServiceURLs contains URLs for the collaborators of the gateway based on environment.
// They are used whenever the corresponding environment variable is not set.
type ServiceURLs struct {
	// CatalogAPIBaseURL is the base URL for the remote movie catalog API.
	CatalogAPIBaseURL string
	// IdentityIssuerURL is the OIDC issuer of the identity provider realm.
	IdentityIssuerURL string
}

// GetServiceURLs returns environment-appropriate URLs for the remote API and
// the identity provider. Calling code does not need to know about the environment.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	urls := cfg.GetServiceURLs()
//	apiURL := urls.CatalogAPIBaseURL
func (c *Config) GetServiceURLs() ServiceURLs {
	switch c.Environment.Environment {
	case NonProd:
		fallthrough
	case Prod:
		return ServiceURLs{
			CatalogAPIBaseURL: "http://moviestar-api.moviestar.svc.cluster.local:8080/api",
			IdentityIssuerURL: "http://keycloak.identity.svc.cluster.local:8080/realms/moviestar",
		}
	case Local:
		fallthrough
	default:
		return ServiceURLs{
			CatalogAPIBaseURL: "http://localhost:8081/api",
			IdentityIssuerURL: "http://localhost:8180/realms/moviestar",
		}
	}
}
