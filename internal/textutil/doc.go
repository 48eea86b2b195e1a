// Package textutil provides small text helpers, currently filename
// sanitization for payload names received from the content service.
package textutil
