// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {

	It("should default unset options", func() {
		opts := EventStoreOptions{}
		opts.Defaults()
		Expect(opts.MaxEvents).To(Equal(1000))
		Expect(opts.TTL).To(Equal(time.Hour))
		Expect(opts.ResyncInterval).To(Equal(time.Minute))
	})

	It("should list events oldest first", func() {
		store := NewEventStore(logr.Discard(), EventStoreOptions{MaxEvents: 4})
		store.Eventf("/virtio_mmio@a000000", EventTypeNormal, ReasonDiscovered, "%s device", "Block")
		store.Eventf("00:01.0", EventTypeWarning, ReasonTransportFailed, "no common configuration")

		events := store.ListEvents()
		Expect(events).To(HaveLen(2))
		Expect(events[0].Source).To(Equal("/virtio_mmio@a000000"))
		Expect(events[0].Message).To(Equal("Block device"))
		Expect(events[1].Type).To(Equal(EventTypeWarning))
		Expect(events[1].Reason).To(Equal(ReasonTransportFailed))
	})

	It("should overwrite the oldest event when full", func() {
		store := NewEventStore(logr.Discard(), EventStoreOptions{MaxEvents: 2})
		store.Eventf("a", EventTypeNormal, ReasonDiscovered, "first")
		store.Eventf("b", EventTypeNormal, ReasonDiscovered, "second")
		store.Eventf("c", EventTypeNormal, ReasonDiscovered, "third")

		events := store.ListEvents()
		Expect(events).To(HaveLen(2))
		Expect(events[0].Source).To(Equal("b"))
		Expect(events[1].Source).To(Equal("c"))
	})

	It("should return copies", func() {
		store := NewEventStore(logr.Discard(), EventStoreOptions{MaxEvents: 2})
		store.Eventf("a", EventTypeNormal, ReasonDiscovered, "first")

		store.ListEvents()[0].Message = "changed"
		Expect(store.ListEvents()[0].Message).To(Equal("first"))
	})

	It("should expire events after their TTL", func() {
		now := time.Unix(1000, 0)
		store := NewEventStore(logr.Discard(), EventStoreOptions{MaxEvents: 4, TTL: time.Minute})
		store.now = func() time.Time { return now }

		store.Eventf("a", EventTypeNormal, ReasonDiscovered, "old")
		now = now.Add(30 * time.Second)
		store.Eventf("b", EventTypeNormal, ReasonDiscovered, "new")

		now = now.Add(45 * time.Second)
		store.removeExpiredEvents()

		events := store.ListEvents()
		Expect(events).To(HaveLen(1))
		Expect(events[0].Source).To(Equal("b"))
	})

	It("should run the expiration loop until cancelled", func(ctx SpecContext) {
		store := NewEventStore(logr.Discard(), EventStoreOptions{
			MaxEvents:      4,
			TTL:            time.Millisecond,
			ResyncInterval: 10 * time.Millisecond,
		})
		store.Eventf("a", EventTypeNormal, ReasonDiscovered, "short lived")

		loopCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go store.Start(loopCtx)

		Eventually(store.ListEvents).Should(BeEmpty())
	})
})
