// Package types provides core value types shared across the agentkit framework.
// This package has ZERO dependencies on other agentkit packages to avoid circular
// imports. All other packages should import types from here.
package types
