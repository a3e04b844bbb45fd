// Package eventring keeps a bounded in-memory index of recently emitted
// events.
//
// The ring serves three consumers: the reconnection path counts events a
// client missed while disconnected, the recent-events HTTP endpoint reads a
// bounded window for dashboards (optionally long-polling via WaitForAppend),
// and tests observe emission order. Entries are evicted oldest-first once
// capacity is reached; nothing is persisted.
package eventring
