package apps

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/registry"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
)

var validate = validator.New()

// Finding is one structured validation problem. Invalid input is an expected
// condition, so validation produces findings rather than errors; callers that
// need an error convert with FindingsError.
type Finding struct {
	Field   string
	Message string
}

func (f Finding) String() string {
	return f.Field + ": " + f.Message
}

// ValidateApplication checks an application for registration. It is pure and
// returns every problem found; an empty result means the application is
// valid.
func ValidateApplication(app *Application) []Finding {
	var findings []Finding

	if err := validate.Struct(app); err != nil {
		for _, ve := range err.(validator.ValidationErrors) {
			findings = append(findings, Finding{
				Field:   ve.Field(),
				Message: fmt.Sprintf("failed %q validation", ve.Tag()),
			})
		}
	}

	switch app.ClientType {
	case registry.ClientConfidential:
		if app.ClientSecret == "" {
			findings = append(findings, Finding{
				Field:   "ClientSecret",
				Message: "confidential applications require a client secret",
			})
		}
	case registry.ClientPublic:
		if app.ClientSecret != "" {
			findings = append(findings, Finding{
				Field:   "ClientSecret",
				Message: "public applications must not have a client secret",
			})
		}
	}

	findings = append(findings, validateURIs("RedirectURIs", app.RedirectURIs)...)
	findings = append(findings, validateURIs("PostLogoutRedirectURIs", app.PostLogoutRedirectURIs)...)

	return findings
}

func validateURIs(field string, uris []string) []Finding {
	var findings []Finding
	for _, uri := range uris {
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() || u.Host == "" {
			findings = append(findings, Finding{
				Field:   field,
				Message: fmt.Sprintf("%q is not an absolute URI", uri),
			})
			continue
		}
		if u.Fragment != "" {
			findings = append(findings, Finding{
				Field:   field,
				Message: fmt.Sprintf("%q must not carry a fragment", uri),
			})
		}
	}
	return findings
}

// FindingsError converts validation findings into a single error, or nil when
// there are none.
func FindingsError(findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	msgs := make([]string, len(findings))
	for i, f := range findings {
		msgs[i] = f.String()
	}
	return errors.NewC("apps: invalid application: "+strings.Join(msgs, "; "), codes.InvalidArgument)
}
