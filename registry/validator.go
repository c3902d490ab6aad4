package registry

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/keys"
	"google.golang.org/grpc/codes"
)

// Validate checks a set of registrations for consistency and normalizes them
// in place: missing ids are resolved, credentials are sorted into preference
// order and assigned key ids. It runs once at startup; any problem is a fatal
// configuration error. All problems are reported, not just the first.
func Validate(regs []*Registration, now time.Time) error {
	var problems []string

	seenIDs := map[string]string{}
	seenURIs := map[string]string{}

	for _, r := range regs {
		id := r.EnsureID()

		lower := strings.ToLower(id)
		if prev, ok := seenIDs[lower]; ok {
			problems = append(problems, fmt.Sprintf(
				"registration id %q conflicts with %q (ids are case-insensitive)", id, prev))
		} else {
			seenIDs[lower] = id
		}

		for _, uri := range r.RedirectURIs {
			if prev, ok := seenURIs[uri]; ok {
				problems = append(problems, fmt.Sprintf(
					"redirect uri %q on registration %q already used by registration %q", uri, id, prev))
			} else {
				seenURIs[uri] = id
			}
		}
		for _, uri := range r.PostLogoutRedirectURIs {
			if prev, ok := seenURIs[uri]; ok {
				problems = append(problems, fmt.Sprintf(
					"post-logout redirect uri %q on registration %q already used by registration %q", uri, id, prev))
			} else {
				seenURIs[uri] = id
			}
		}

		problems = append(problems, validateRegistration(r)...)

		keys.SortCredentials(r.SigningCredentials, now)
		keys.AssignKeyIDs(r.SigningCredentials)
		keys.SortCredentials(r.EncryptionCredentials, now)
		keys.AssignKeyIDs(r.EncryptionCredentials)
	}

	if len(problems) > 0 {
		return errors.NewC(
			"registry: invalid configuration: "+strings.Join(problems, "; "),
			codes.FailedPrecondition)
	}
	return nil
}

func validateRegistration(r *Registration) []string {
	var problems []string
	id := r.RegistrationID

	if r.Issuer == "" {
		problems = append(problems, fmt.Sprintf("registration %q has no issuer", id))
	} else if u, err := url.Parse(r.Issuer); err != nil || !u.IsAbs() || u.Host == "" {
		problems = append(problems, fmt.Sprintf("registration %q issuer %q is not an absolute URL", id, r.Issuer))
	} else if u.RawQuery != "" || u.Fragment != "" {
		problems = append(problems, fmt.Sprintf("registration %q issuer %q must not carry query or fragment", id, r.Issuer))
	}

	if r.Configuration != nil && r.MetadataAddress != "" {
		problems = append(problems, fmt.Sprintf(
			"registration %q sets both a static configuration and a metadata address", id))
	}

	if r.ClientID == "" {
		problems = append(problems, fmt.Sprintf("registration %q has no client id", id))
	}

	if r.HasResponseType(ResponseCode) && !r.HasGrant(GrantAuthorizationCode) {
		problems = append(problems, fmt.Sprintf(
			"registration %q allows the code response without the authorization_code grant", id))
	}
	if (r.HasResponseType(ResponseToken) || r.HasResponseType(ResponseIDToken)) && !r.HasGrant(GrantImplicit) {
		problems = append(problems, fmt.Sprintf(
			"registration %q allows token or id_token responses without the implicit grant", id))
	}
	if r.HasGrant(GrantRefreshToken) && !r.Interactive() {
		problems = append(problems, fmt.Sprintf(
			"registration %q allows refresh_token without a grant that can issue one", id))
	}

	if r.Interactive() && len(r.RedirectURIs) == 0 {
		problems = append(problems, fmt.Sprintf(
			"registration %q enables an interactive grant but has no redirect uris", id))
	}

	for _, uri := range r.RedirectURIs {
		problems = append(problems, validateRedirectURI(id, "redirect", uri)...)
	}
	for _, uri := range r.PostLogoutRedirectURIs {
		problems = append(problems, validateRedirectURI(id, "post-logout redirect", uri)...)
	}

	return problems
}

func validateRedirectURI(id, kind, uri string) []string {
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return []string{fmt.Sprintf("registration %q %s uri %q is not absolute", id, kind, uri)}
	}
	if u.Fragment != "" {
		return []string{fmt.Sprintf("registration %q %s uri %q must not carry a fragment", id, kind, uri)}
	}
	return nil
}
