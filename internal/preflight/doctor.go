// Package preflight checks that a run can start: settings are valid, the
// speech program is installed, credentials exist and the runs directory is
// writable.
package preflight

import (
	"net/url"
	"os"
	"strings"

	"shorteezy/internal/runstore"
	"shorteezy/internal/settings"
)

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Doctor runs every check and reports all of them, failing or not.
func Doctor(s settings.Settings) DoctorResult {
	checks := make([]DoctorCheck, 0, 5)

	if err := s.Validate(); err != nil {
		checks = append(checks, DoctorCheck{Name: "config", OK: false, Message: err.Error()})
	} else {
		checks = append(checks, DoctorCheck{Name: "config", OK: true, Message: "valid"})
	}

	checks = append(checks, imageCredentialCheck(s))
	checks = append(checks, speechCheck(s))

	runsDirOK, runsDirMessage := ensureWritableDir(s.RunsDir)
	checks = append(checks, DoctorCheck{
		Name:    "directory:runs",
		OK:      runsDirOK,
		Message: runsDirMessage,
	})

	checks = append(checks, scriptEndpointCheck(s))

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

// SpeechReady is the subset of Doctor the generate command insists on
// before spending any time on script generation.
func SpeechReady(s settings.Settings) DoctorCheck {
	return speechCheck(s)
}

func imageCredentialCheck(s settings.Settings) DoctorCheck {
	c := DoctorCheck{Name: "credential:image", OK: true}
	switch s.Image.Provider {
	case settings.ProviderRunware:
		if strings.TrimSpace(s.Image.APIKey) == "" {
			c.OK = false
			c.Message = settings.EnvRunwareKey + " is not set"
		} else {
			c.Message = "runware key present"
		}
	case settings.ProviderPollinations:
		c.Message = "pollinations needs no key"
	default:
		c.OK = false
		c.Message = "unknown provider " + s.Image.Provider
	}
	return c
}

func speechCheck(s settings.Settings) DoctorCheck {
	name := "dependency:speech"
	speech, err := s.SpeechCommand(nil)
	if err != nil {
		return DoctorCheck{Name: name, OK: false, Message: err.Error()}
	}
	path, err := speech.Check()
	if err != nil {
		return DoctorCheck{Name: name, OK: false, Message: err.Error()}
	}
	return DoctorCheck{Name: name, OK: true, Message: speech.Program + " found at " + path}
}

func scriptEndpointCheck(s settings.Settings) DoctorCheck {
	c := DoctorCheck{Name: "endpoint:script"}
	u, err := url.Parse(strings.TrimSpace(s.Script.BaseURL))
	switch {
	case err != nil:
		c.Message = err.Error()
	case u.Scheme != "http" && u.Scheme != "https":
		c.Message = "base_url must be http(s), got " + s.Script.BaseURL
	case strings.TrimSpace(s.Script.Model) == "":
		c.Message = "script model is not set"
	default:
		c.OK = true
		c.Message = s.Script.Model + " at " + u.String()
	}
	return c
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "shorteezy-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
