// Package cors decides which browser origins may read gateway responses.
//
// A Policy is a pure function from an Origin header to a Decision. Middleware
// applies that decision to every response and answers preflight requests
// itself, so backends never see them.
package cors
