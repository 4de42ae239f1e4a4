package systeminfo

import (
	"context"
	"sync"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/model"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// FetchFunc builds one snapshot of a property. It runs on the fetch pool.
type FetchFunc func(ctx context.Context) (model.Property, error)

// WatchFunc subscribes to the native change source of a property and calls
// changed on every notification, from any goroutine. The returned function
// tears the subscription down.
type WatchFunc func(changed func()) (stop func())

// CountFunc reports how many units a property has.
type CountFunc func(ctx context.Context) (int, error)

// Source describes how one property kind is read and watched. A kind without
// Watch never broadcasts; a kind that is not Supported only ever reports
// not-supported errors.
type Source struct {
	Supported bool
	Fetch     FetchFunc
	Watch     WatchFunc
	Count     CountFunc
}

// Platform maps every property kind to its source. Kinds missing from the
// map are unsupported.
type Platform map[model.Kind]Source

// watchKeys notifies on a change of any of the vconf keys.
func watchKeys(vc *native.Vconf, keys ...string) WatchFunc {
	return func(changed func()) func() {
		cancels := make([]func(), 0, len(keys))
		for _, key := range keys {
			cancels = append(cancels, vc.Notify(key, func(string) { changed() }))
		}
		return func() {
			for _, cancel := range cancels {
				cancel()
			}
		}
	}
}

// poll notifies on every tick, for kinds without a native push source.
func poll(interval time.Duration) WatchFunc {
	return func(changed func()) func() {
		ticker := time.NewTicker(interval)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-ticker.C:
					changed()
				case <-done:
					return
				}
			}
		}()
		var once sync.Once
		return func() {
			once.Do(func() {
				ticker.Stop()
				close(done)
			})
		}
	}
}

func combine(watches ...WatchFunc) WatchFunc {
	return func(changed func()) func() {
		stops := make([]func(), 0, len(watches))
		for _, w := range watches {
			stops = append(stops, w(changed))
		}
		return func() {
			for _, stop := range stops {
				stop()
			}
		}
	}
}
