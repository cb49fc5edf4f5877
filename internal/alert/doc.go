// Package alert provides the business boundary for Bosun's alert triage and
// escalation engine. It defines the Service (acknowledge, snooze, assign,
// snapshots), the Classifier, the Store interface (persistence) and the domain
// models shared by the memstore and pgstore implementations.
package alert
