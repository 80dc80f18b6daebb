package monitor

import (
	"context"
	"strings"

	"priceflow/internal/browser"
	"priceflow/internal/notify"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// hostileDomains are retailers with aggressive bot detection. Checks against
// them go through the proxy pool and get extra retry attempts.
var hostileDomains = []string{
	"amazon.fr",
	"amazon.com",
	"amazon.de",
	"cdiscount.com",
}

func isHostileDomain(rawURL string) bool {
	domain := page.Domain(rawURL)
	for _, hostile := range hostileDomains {
		if domain == hostile || strings.HasSuffix(domain, "."+hostile) {
			return true
		}
	}
	return false
}

// PageFetcher loads one product page in a fresh browser context.
type PageFetcher interface {
	Fetch(ctx context.Context, url, slug string, hostile bool) (*page.Capture, error)
}

type browserFetcher struct {
	manager *browser.Manager
	loader  *page.Loader
}

var _ PageFetcher = (*browserFetcher)(nil)

// NewBrowserFetcher composes the session manager and loader into a
// PageFetcher. Every fetch runs in its own disposable context.
func NewBrowserFetcher(manager *browser.Manager, loader *page.Loader) PageFetcher {
	return &browserFetcher{manager: manager, loader: loader}
}

func (f *browserFetcher) Fetch(ctx context.Context, url, slug string, hostile bool) (*page.Capture, error) {
	pc, err := f.manager.AcquireContext(ctx, hostile)
	if err != nil {
		return nil, err
	}
	defer pc.Close()
	return f.loader.Load(ctx, pc, url, slug)
}

// NotifierResolver builds the notifier for a stored channel id.
type NotifierResolver interface {
	Resolve(ctx context.Context, channelID int64) (notify.Notifier, error)
}

type channelResolver struct {
	channels storage.ChannelStore
	opts     notify.Options
}

var _ NotifierResolver = (*channelResolver)(nil)

// NewChannelResolver resolves notifiers from the channel store.
func NewChannelResolver(channels storage.ChannelStore, opts notify.Options) NotifierResolver {
	return &channelResolver{channels: channels, opts: opts}
}

func (r *channelResolver) Resolve(ctx context.Context, channelID int64) (notify.Notifier, error) {
	channel, err := r.channels.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !channel.IsActive {
		return nil, nil
	}
	return notify.FromChannel(channel, r.opts)
}

func notifyMessage(decision *PriceNotification, url string) notify.Message {
	return notify.Message{Title: decision.Title, Body: decision.Body, URL: url}
}
