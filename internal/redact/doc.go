// Package redact masks sensitive data in network traces before they are logged.
//
// All functions are pure and safe for concurrent use.
//
//   - Headers: credential headers (Authorization, Cookie, the rotation headers)
//     keep only four characters at each end, or are masked entirely when the
//     value is 12 characters or shorter. Other headers go through Text.
//   - Body: JSON is pretty printed, binary content becomes "<binary N bytes>",
//     the result goes through Text and is cut at MaxBodyLength runes.
//   - Text: per whitespace-separated token, emails keep the first local-part
//     character and the domain ("a***@b.com"); tokens with seven or more digits
//     keep the first two and last two digits ("55******67").
package redact
