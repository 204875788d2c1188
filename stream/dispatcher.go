package stream

import (
	"context"

	"goa.design/clue/log"

	"github.com/genui/genui/images"
	"github.com/genui/genui/ui"
)

// Dispatcher emits structurally completed components onto the sink in arrival
// order, attaching image assets to component types that need them. One
// dispatcher serves one request; its asset id counter is request-scoped so
// concurrent sessions never collide within a client's rendered view.
type Dispatcher struct {
	gen     images.Generator
	store   *images.Store
	hub     *images.Hub
	counter *images.Counter
}

// NewDispatcher builds a request-scoped dispatcher. gen may be nil, in which
// case image-requiring components receive the fallback URL.
func NewDispatcher(gen images.Generator, store *images.Store, hub *images.Hub) *Dispatcher {
	return &Dispatcher{gen: gen, store: store, hub: hub, counter: images.NewCounter()}
}

// Dispatch augments and emits one parser flush worth of components, in array
// order. Augmentation is awaited before each write so two components never
// interleave on the wire. Asset failures attach the fallback URL and never
// abort dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, comps []ui.Component, sink Sink) error {
	for _, comp := range comps {
		if ui.NeedsImage(comp.Type) && comp.Content() != "" {
			d.attachImage(ctx, &comp)
		}
		if err := sink.Send(ctx, comp); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) attachImage(ctx context.Context, comp *ui.Component) {
	id := d.counter.Next()
	if d.gen == nil {
		comp.SetImage(id, images.FallbackURL)
		return
	}
	url, err := d.gen.Generate(ctx, comp.Content(), comp.Columns())
	if err != nil {
		log.Errorf(ctx, err, "generate image asset %d", id)
		comp.SetImage(id, images.FallbackURL)
		return
	}
	comp.SetImage(id, url)
	if d.store != nil {
		d.store.Set(id, url)
	}
	if d.hub != nil {
		d.hub.Publish(images.Ready{AssetID: id, URL: url})
	}
}
