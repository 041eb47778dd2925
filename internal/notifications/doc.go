// Package notifications delivers job lifecycle events to interested parties.
//
// Two surfaces are provided. The Hub fans progress and terminal events out to
// in-process subscribers (the API layer streams them to clients), assigning
// each job an ordered event sequence and closing the stream once a terminal
// event has been delivered. The Service pushes terminal notifications to an
// external ntfy topic when one is configured, or to no one otherwise.
package notifications
