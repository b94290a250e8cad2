// Package sheets stores transcripts through a spreadsheet web endpoint.
//
// Transport errors and 408, 429 and 5xx responses are storage failures and
// retried. Other 4xx responses mean the request itself was rejected.
package sheets
