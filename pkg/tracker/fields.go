package tracker

import (
	"github.com/platinummonkey/beacon/pkg/platform"
)

// ClientID returns the anonymous client identifier (cid).
func (t *Tracker) ClientID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clientID
}

// SetClientID overrides the client identifier.
func (t *Tracker) SetClientID(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clientID = v
}

// AppName returns the application name (an).
func (t *Tracker) AppName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.appName
}

// SetAppName sets the application name (an).
func (t *Tracker) SetAppName(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appName = v
}

// AppVersion returns the application version (av).
func (t *Tracker) AppVersion() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.appVersion
}

// SetAppVersion sets the application version (av).
func (t *Tracker) SetAppVersion(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appVersion = v
}

// SetAppID sets the application identifier (aid).
func (t *Tracker) SetAppID(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appID = v
}

// SetAppInstallerID sets the application installer identifier (aiid).
func (t *Tracker) SetAppInstallerID(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appInstallerID = v
}

// ScreenName returns the current screen name (cd).
func (t *Tracker) ScreenName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.screenName
}

// SetScreenName sets the screen name sent with every hit (cd).
func (t *Tracker) SetScreenName(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screenName = v
}

// SetAnonymizeIP enables or disables IP anonymization (aip).
func (t *Tracker) SetAnonymizeIP(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anonymizeIP = v
}

// ScreenResolution returns the cached screen resolution (sr).
func (t *Tracker) ScreenResolution() platform.Dimensions {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.screenResolution
}

// SetScreenResolution sets the screen resolution (sr).
func (t *Tracker) SetScreenResolution(d platform.Dimensions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screenResolution = d
}

// ViewportSize returns the cached viewport size (vp).
func (t *Tracker) ViewportSize() platform.Dimensions {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.viewportSize
}

// SetViewportSize sets the viewport size (vp).
func (t *Tracker) SetViewportSize(d platform.Dimensions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewportSize = d
}

// SetScreenColors sets the screen color depth in bits (sd).
func (t *Tracker) SetScreenColors(bits int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screenColors = bits
}

// SetLanguage sets the user language (ul).
func (t *Tracker) SetLanguage(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.language = v
}

// SetEncoding sets the document encoding (de).
func (t *Tracker) SetEncoding(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.encoding = v
}

// SetIPOverride sets the user IP address override (uip).
func (t *Tracker) SetIPOverride(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ipOverride = v
}

// SetUserAgentOverride sets the user agent override (ua).
func (t *Tracker) SetUserAgentOverride(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userAgent = v
}

// SetLocationOverride sets the geographical location override (geoid).
func (t *Tracker) SetLocationOverride(v string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = v
}
