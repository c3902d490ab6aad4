// Package apps manages registered client applications: the server-side
// registry of clients that may request tokens. It owns application
// validation, client-secret verification, and redirect-URI matching.
package apps

import (
	"github.com/dpup/passage/registry"
)

// ApplicationType distinguishes browser-delivered clients from installed
// ones. Native applications get the relaxed loopback redirect-URI rule.
type ApplicationType string

const (
	ApplicationTypeWeb    ApplicationType = "web"
	ApplicationTypeNative ApplicationType = "native"
)

// Application is a registered client application.
//
// ClientSecret holds a hashed secret envelope once persisted. When passed to
// Manager.Create it may hold the plaintext secret, which is hashed before the
// record is written.
type Application struct {
	ID              string              `json:"id"`
	ClientID        string              `json:"clientID" validate:"required"`
	ClientType      registry.ClientType `json:"clientType" validate:"required,oneof=confidential public"`
	ClientSecret    string              `json:"clientSecret,omitempty"`
	ApplicationType ApplicationType     `json:"applicationType" validate:"omitempty,oneof=web native"`
	DisplayName     string              `json:"displayName,omitempty"`

	RedirectURIs           []string `json:"redirectURIs,omitempty"`
	PostLogoutRedirectURIs []string `json:"postLogoutRedirectURIs,omitempty"`
	Permissions            []string `json:"permissions,omitempty"`
}

// PK implements storage.Model.
func (a *Application) PK() string {
	return a.ID
}

// Native reports whether the relaxed loopback redirect rule applies.
func (a *Application) Native() bool {
	return a.ApplicationType == ApplicationTypeNative
}

func (a *Application) clone() *Application {
	c := *a
	c.RedirectURIs = append([]string(nil), a.RedirectURIs...)
	c.PostLogoutRedirectURIs = append([]string(nil), a.PostLogoutRedirectURIs...)
	c.Permissions = append([]string(nil), a.Permissions...)
	return &c
}
