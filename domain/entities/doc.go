// Package entities provides the core domain entities shared by the host and the
// guest SDK: pipeline stages, the decoded plugin registration and structured
// error details.
//
// These are plain Go values. Their fixed-layout wire counterparts live in the
// wireformat package.
package entities
