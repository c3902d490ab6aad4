// Package flows provides the built-in handler catalog: the standard
// descriptors that implement configuration discovery, key-set retrieval,
// token requests, and token introspection over the pipeline engine, plus the
// operations that drive an assembled plan. Hosts customize behavior by
// registering additional descriptors alongside this catalog, not by replacing
// it.
package flows

import (
	"github.com/dpup/passage/pipeline"
)

// Catalog returns the standard descriptor set for all sixteen stages. The
// order values are spaced so host descriptors can slot in between.
func Catalog() []pipeline.Descriptor {
	return []pipeline.Descriptor{
		// Configuration: fetch the provider configuration document.
		{
			Name:     "use-static-configuration",
			Stage:    pipeline.StagePrepareConfigurationRequest,
			Order:    pipeline.OrderEarly,
			Filters:  []pipeline.Filter{staticConfigurationFilter},
			Terminal: true,
			Handle:   useStaticConfiguration,
		},
		{
			Name:   "attach-metadata-address",
			Stage:  pipeline.StagePrepareConfigurationRequest,
			Order:  pipeline.OrderStandard,
			Handle: attachMetadataAddress,
		},
		{
			Name:    "create-configuration-request",
			Stage:   pipeline.StageApplyConfigurationRequest,
			Order:   pipeline.OrderEarly,
			Filters: []pipeline.Filter{noDocument},
			Handle:  createGetRequest,
		},
		{
			Name:    "attach-standard-headers",
			Stage:   pipeline.StageApplyConfigurationRequest,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasRequest},
			Handle:  attachStandardHeaders,
		},
		{
			Name:     "send-request",
			Stage:    pipeline.StageApplyConfigurationRequest,
			Order:    pipeline.OrderLate,
			Filters:  []pipeline.Filter{hasRequest},
			Terminal: true,
			Handle:   sendRequest,
		},
		{
			Name:    "read-response-body",
			Stage:   pipeline.StageExtractConfigurationResponse,
			Order:   pipeline.OrderEarly,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  readBody,
		},
		{
			Name:    "validate-response-status",
			Stage:   pipeline.StageExtractConfigurationResponse,
			Order:   pipeline.OrderEarly + pipeline.OrderStep,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  validateStatus,
		},
		{
			Name:    "parse-response-json",
			Stage:   pipeline.StageExtractConfigurationResponse,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasBody},
			Handle:  parseJSON,
		},
		{
			Name:    "build-configuration-document",
			Stage:   pipeline.StageExtractConfigurationResponse,
			Order:   pipeline.OrderStandard + pipeline.OrderStep,
			Filters: []pipeline.Filter{hasBody, noDocument},
			Handle:  buildDocument,
		},
		{
			Name:    "validate-issuer",
			Stage:   pipeline.StageHandleConfigurationResponse,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasDocument},
			Handle:  validateIssuer,
		},
		{
			Name:    "require-endpoints",
			Stage:   pipeline.StageHandleConfigurationResponse,
			Order:   pipeline.OrderStandard + pipeline.OrderStep,
			Filters: []pipeline.Filter{hasDocument},
			Handle:  requireEndpoints,
		},

		// Cryptography: fetch the provider's signing key set.
		{
			Name:   "attach-jwks-address",
			Stage:  pipeline.StagePrepareCryptographyRequest,
			Order:  pipeline.OrderStandard,
			Handle: attachJWKSAddress,
		},
		{
			Name:   "create-cryptography-request",
			Stage:  pipeline.StageApplyCryptographyRequest,
			Order:  pipeline.OrderEarly,
			Handle: createGetRequest,
		},
		{
			Name:    "attach-standard-headers",
			Stage:   pipeline.StageApplyCryptographyRequest,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasRequest},
			Handle:  attachStandardHeaders,
		},
		{
			Name:     "send-request",
			Stage:    pipeline.StageApplyCryptographyRequest,
			Order:    pipeline.OrderLate,
			Filters:  []pipeline.Filter{hasRequest},
			Terminal: true,
			Handle:   sendRequest,
		},
		{
			Name:    "read-response-body",
			Stage:   pipeline.StageExtractCryptographyResponse,
			Order:   pipeline.OrderEarly,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  readBody,
		},
		{
			Name:    "validate-response-status",
			Stage:   pipeline.StageExtractCryptographyResponse,
			Order:   pipeline.OrderEarly + pipeline.OrderStep,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  validateStatus,
		},
		{
			Name:    "parse-key-set",
			Stage:   pipeline.StageExtractCryptographyResponse,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasBody},
			Handle:  parseJWKS,
		},
		{
			Name:   "require-keys",
			Stage:  pipeline.StageHandleCryptographyResponse,
			Order:  pipeline.OrderStandard,
			Handle: requireKeys,
		},

		// Token: exchange a grant for tokens.
		{
			Name:   "attach-grant-parameters",
			Stage:  pipeline.StagePrepareTokenRequest,
			Order:  pipeline.OrderEarly,
			Handle: attachGrantParameters,
		},
		{
			Name:   "attach-client-credentials",
			Stage:  pipeline.StagePrepareTokenRequest,
			Order:  pipeline.OrderStandard,
			Handle: attachClientCredentials,
		},
		{
			Name:   "attach-token-endpoint",
			Stage:  pipeline.StagePrepareTokenRequest,
			Order:  pipeline.OrderLate,
			Handle: attachTokenEndpoint,
		},
		{
			Name:   "create-token-request",
			Stage:  pipeline.StageApplyTokenRequest,
			Order:  pipeline.OrderEarly,
			Handle: createFormRequest,
		},
		{
			Name:    "attach-standard-headers",
			Stage:   pipeline.StageApplyTokenRequest,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasRequest},
			Handle:  attachStandardHeaders,
		},
		{
			Name:     "send-request",
			Stage:    pipeline.StageApplyTokenRequest,
			Order:    pipeline.OrderLate,
			Filters:  []pipeline.Filter{hasRequest},
			Terminal: true,
			Handle:   sendRequest,
		},
		{
			Name:    "read-response-body",
			Stage:   pipeline.StageExtractTokenResponse,
			Order:   pipeline.OrderEarly,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  readBody,
		},
		{
			Name:    "parse-response-json",
			Stage:   pipeline.StageExtractTokenResponse,
			Order:   pipeline.OrderEarly + pipeline.OrderStep,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  parseJSON,
		},
		{
			Name:    "map-protocol-error",
			Stage:   pipeline.StageExtractTokenResponse,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasProtocolError},
			Handle:  mapProtocolError,
		},
		{
			Name:    "validate-response-status",
			Stage:   pipeline.StageExtractTokenResponse,
			Order:   pipeline.OrderLate,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  validateStatus,
		},
		{
			Name:   "require-token-fields",
			Stage:  pipeline.StageHandleTokenResponse,
			Order:  pipeline.OrderStandard,
			Handle: requireTokenFields,
		},
		{
			Name:   "build-token-response",
			Stage:  pipeline.StageHandleTokenResponse,
			Order:  pipeline.OrderStandard + pipeline.OrderStep,
			Handle: buildTokenResponse,
		},

		// Introspection: RFC 7662 token metadata lookup.
		{
			Name:   "attach-introspection-parameters",
			Stage:  pipeline.StagePrepareIntrospectionRequest,
			Order:  pipeline.OrderEarly,
			Handle: attachIntrospectionParameters,
		},
		{
			Name:   "attach-client-credentials",
			Stage:  pipeline.StagePrepareIntrospectionRequest,
			Order:  pipeline.OrderStandard,
			Handle: attachClientCredentials,
		},
		{
			Name:   "attach-introspection-endpoint",
			Stage:  pipeline.StagePrepareIntrospectionRequest,
			Order:  pipeline.OrderLate,
			Handle: attachIntrospectionEndpoint,
		},
		{
			Name:   "create-introspection-request",
			Stage:  pipeline.StageApplyIntrospectionRequest,
			Order:  pipeline.OrderEarly,
			Handle: createFormRequest,
		},
		{
			Name:    "attach-standard-headers",
			Stage:   pipeline.StageApplyIntrospectionRequest,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasRequest},
			Handle:  attachStandardHeaders,
		},
		{
			Name:     "send-request",
			Stage:    pipeline.StageApplyIntrospectionRequest,
			Order:    pipeline.OrderLate,
			Filters:  []pipeline.Filter{hasRequest},
			Terminal: true,
			Handle:   sendRequest,
		},
		{
			Name:    "read-response-body",
			Stage:   pipeline.StageExtractIntrospectionResponse,
			Order:   pipeline.OrderEarly,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  readBody,
		},
		{
			Name:    "parse-response-json",
			Stage:   pipeline.StageExtractIntrospectionResponse,
			Order:   pipeline.OrderEarly + pipeline.OrderStep,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  parseJSON,
		},
		{
			Name:    "map-protocol-error",
			Stage:   pipeline.StageExtractIntrospectionResponse,
			Order:   pipeline.OrderStandard,
			Filters: []pipeline.Filter{hasProtocolError},
			Handle:  mapProtocolError,
		},
		{
			Name:    "validate-response-status",
			Stage:   pipeline.StageExtractIntrospectionResponse,
			Order:   pipeline.OrderLate,
			Filters: []pipeline.Filter{hasResponse},
			Handle:  validateStatus,
		},
		{
			Name:   "require-active",
			Stage:  pipeline.StageHandleIntrospectionResponse,
			Order:  pipeline.OrderStandard,
			Handle: requireActive,
		},
	}
}
