// Package pipeline implements the engine at the heart of passage: protocol
// behavior is not hard-coded per operation, but assembled from a flat catalog
// of handler descriptors. Each descriptor declares the protocol stage it
// applies to, its position within that stage, and optional filters that
// decide per-operation whether it runs. The assembler validates and orders
// the catalog once at configuration time; the executor then walks the
// ordered sequence for each in-flight operation.
//
// The engine knows nothing about HTTP, JSON, or OAuth semantics. Those
// concerns live in the handler catalog (see the flows package) and in
// whatever descriptors host integrations register on top of it.
package pipeline

// Stage identifies one protocol-stage kind. Stages form a closed set: each
// protocol operation (configuration discovery, cryptography-key retrieval,
// token issuance, introspection) is split into a prepare/apply/extract/handle
// sequence, and every handler descriptor is bound to exactly one stage.
type Stage uint8

const (
	StageUnknown Stage = iota

	StagePrepareConfigurationRequest
	StageApplyConfigurationRequest
	StageExtractConfigurationResponse
	StageHandleConfigurationResponse

	StagePrepareCryptographyRequest
	StageApplyCryptographyRequest
	StageExtractCryptographyResponse
	StageHandleCryptographyResponse

	StagePrepareTokenRequest
	StageApplyTokenRequest
	StageExtractTokenResponse
	StageHandleTokenResponse

	StagePrepareIntrospectionRequest
	StageApplyIntrospectionRequest
	StageExtractIntrospectionResponse
	StageHandleIntrospectionResponse

	stageCount
)

var stageNames = map[Stage]string{
	StageUnknown: "unknown",

	StagePrepareConfigurationRequest:  "prepare_configuration_request",
	StageApplyConfigurationRequest:    "apply_configuration_request",
	StageExtractConfigurationResponse: "extract_configuration_response",
	StageHandleConfigurationResponse:  "handle_configuration_response",

	StagePrepareCryptographyRequest:  "prepare_cryptography_request",
	StageApplyCryptographyRequest:    "apply_cryptography_request",
	StageExtractCryptographyResponse: "extract_cryptography_response",
	StageHandleCryptographyResponse:  "handle_cryptography_response",

	StagePrepareTokenRequest:  "prepare_token_request",
	StageApplyTokenRequest:    "apply_token_request",
	StageExtractTokenResponse: "extract_token_response",
	StageHandleTokenResponse:  "handle_token_response",

	StagePrepareIntrospectionRequest:  "prepare_introspection_request",
	StageApplyIntrospectionRequest:    "apply_introspection_request",
	StageExtractIntrospectionResponse: "extract_introspection_response",
	StageHandleIntrospectionResponse:  "handle_introspection_response",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether the stage is a member of the closed stage set.
func (s Stage) Valid() bool {
	return s > StageUnknown && s < stageCount
}

// ConfigurationStages returns the stage sequence for a discovery-document
// fetch, in execution order.
func ConfigurationStages() []Stage {
	return []Stage{
		StagePrepareConfigurationRequest,
		StageApplyConfigurationRequest,
		StageExtractConfigurationResponse,
		StageHandleConfigurationResponse,
	}
}

// CryptographyStages returns the stage sequence for a JWKS fetch, in
// execution order.
func CryptographyStages() []Stage {
	return []Stage{
		StagePrepareCryptographyRequest,
		StageApplyCryptographyRequest,
		StageExtractCryptographyResponse,
		StageHandleCryptographyResponse,
	}
}

// TokenStages returns the stage sequence for a token request, in execution
// order.
func TokenStages() []Stage {
	return []Stage{
		StagePrepareTokenRequest,
		StageApplyTokenRequest,
		StageExtractTokenResponse,
		StageHandleTokenResponse,
	}
}

// IntrospectionStages returns the stage sequence for a token introspection
// request, in execution order.
func IntrospectionStages() []Stage {
	return []Stage{
		StagePrepareIntrospectionRequest,
		StageApplyIntrospectionRequest,
		StageExtractIntrospectionResponse,
		StageHandleIntrospectionResponse,
	}
}
