package platform

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/platinummonkey/beacon/pkg/prefs"
)

// Dimensions is a width/height pair in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// IsZero reports whether either side is zero.
func (d Dimensions) IsZero() bool {
	return d.Width == 0 || d.Height == 0
}

// String formats the dimensions as WxH.
func (d Dimensions) String() string {
	return strconv.Itoa(d.Width) + "x" + strconv.Itoa(d.Height)
}

// Geometry identifies which dimensions changed.
type Geometry int

const (
	GeometryScreen Geometry = iota
	GeometryViewport
)

func (g Geometry) String() string {
	return []string{"screen", "viewport"}[g]
}

// Provider supplies facts about the host the client runs on.
type Provider interface {
	AnonymousClientID() string
	ScreenResolution() Dimensions
	ViewportResolution() Dimensions
	ScreenColors() int
	UserLanguage() string
	UserAgent() string
	// OnGeometryChanged registers fn for screen/viewport changes and returns a function
	// that removes the registration.
	OnGeometryChanged(fn func(Geometry)) (unsubscribe func())
}

// ClientIDStyle selects how new anonymous client IDs are generated.
type ClientIDStyle int

const (
	// ClientIDStyleTimestamp produces "<10-digit unix seconds>.<10-digit random>"
	ClientIDStyleTimestamp ClientIDStyle = iota
	// ClientIDStyleUUID produces a random version 4 UUID
	ClientIDStyleUUID
)

const noKey = "NoKey"

// Config configures Info.
type Config struct {
	AppName       string
	AppVersion    string
	Store         prefs.Store
	ClientIDStyle ClientIDStyle
	// Language overrides locale detection when set
	Language    string
	ScreenColor int
	Screen      Dimensions
	Viewport    Dimensions
	Now         func() time.Time
}

// Info is a headless Provider. Geometry is pushed in by the host through
// SetScreenResolution and SetViewportResolution.
type Info struct {
	config Config

	mu        sync.RWMutex
	clientID  string
	screen    Dimensions
	viewport  Dimensions
	listeners map[int]func(Geometry)
	nextID    int
}

// NewInfo creates a provider. A nil Store keeps client IDs in memory only.
func NewInfo(config Config) *Info {
	if config.Store == nil {
		config.Store = prefs.NewMemory()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Info{
		config:    config,
		screen:    config.Screen,
		viewport:  config.Viewport,
		listeners: make(map[int]func(Geometry)),
	}
}

// AnonymousClientID returns the persisted client ID, generating and saving one on first
// use. Storage failures fall back to an in-memory ID for the process lifetime.
func (i *Info) AnonymousClientID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.clientID != "" {
		return i.clientID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := i.config.Store.Load(ctx, prefs.KeyAnonymousClientID, noKey)
	if err != nil || id == "" || strings.Contains(id, noKey) {
		id = i.generateClientID()
		// Best effort; the ID stays stable for this process either way.
		_ = i.config.Store.Save(ctx, prefs.KeyAnonymousClientID, id)
	}

	i.clientID = id
	return id
}

// SetAnonymousClientID replaces the cached client ID without persisting it.
func (i *Info) SetAnonymousClientID(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.clientID = id
}

func (i *Info) generateClientID() string {
	if i.config.ClientIDStyle == ClientIDStyleUUID {
		return uuid.NewString()
	}
	seconds := uint32(i.config.Now().Unix())
	return fmt.Sprintf("%010d.%010d", seconds, rand.Uint32())
}

// ScreenResolution implements Provider
func (i *Info) ScreenResolution() Dimensions {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.screen
}

// ViewportResolution implements Provider
func (i *Info) ViewportResolution() Dimensions {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.viewport
}

// SetScreenResolution updates the screen size and notifies listeners if it changed.
func (i *Info) SetScreenResolution(d Dimensions) {
	i.setGeometry(GeometryScreen, d)
}

// SetViewportResolution updates the viewport size and notifies listeners if it changed.
func (i *Info) SetViewportResolution(d Dimensions) {
	i.setGeometry(GeometryViewport, d)
}

func (i *Info) setGeometry(kind Geometry, d Dimensions) {
	i.mu.Lock()
	current := &i.screen
	if kind == GeometryViewport {
		current = &i.viewport
	}
	if *current == d {
		i.mu.Unlock()
		return
	}
	*current = d

	listeners := make([]func(Geometry), 0, len(i.listeners))
	for _, fn := range i.listeners {
		listeners = append(listeners, fn)
	}
	i.mu.Unlock()

	// Listeners run outside the lock so they may call back into the provider.
	for _, fn := range listeners {
		fn(kind)
	}
}

// OnGeometryChanged implements Provider
func (i *Info) OnGeometryChanged(fn func(Geometry)) func() {
	i.mu.Lock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	i.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			i.mu.Lock()
			delete(i.listeners, id)
			i.mu.Unlock()
		})
	}
}

// ScreenColors implements Provider
func (i *Info) ScreenColors() int {
	return i.config.ScreenColor
}

// UserLanguage returns a BCP 47 tag derived from LC_ALL, LC_MESSAGES or LANG, or the
// configured override.
func (i *Info) UserLanguage() string {
	if i.config.Language != "" {
		return canonicalLanguage(i.config.Language)
	}
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(env); v != "" {
			if tag := canonicalLanguage(v); tag != "" {
				return tag
			}
		}
	}
	return ""
}

// canonicalLanguage turns POSIX locale names like "en_US.UTF-8" into "en-US".
// "C" and "POSIX" carry no language and yield "".
func canonicalLanguage(locale string) string {
	if idx := strings.IndexAny(locale, ".@"); idx >= 0 {
		locale = locale[:idx]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return ""
	}
	return tag.String()
}

// SystemInfo describes the operating system for the user agent.
func SystemInfo() string {
	switch runtime.GOOS {
	case "darwin":
		return "Macintosh; Mac OS " + runtime.GOARCH
	case "windows":
		return "Windows; " + runtime.GOARCH
	case "linux":
		return "Linux; " + runtime.GOARCH
	default:
		return runtime.GOOS + "; " + runtime.GOARCH
	}
}

// UserAgent implements Provider
func (i *Info) UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s) beacon/1.0 (Go/%s)",
		i.config.AppName, i.config.AppVersion, SystemInfo(), i.UserLanguage(),
		strings.TrimPrefix(runtime.Version(), "go"))
}
