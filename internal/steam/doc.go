// Package steam discovers new matches through the Steam Web API. Discovery
// walks the global match sequence with GetMatchHistoryBySequenceNum and never
// reports a failed request as an empty batch: an empty batch always means the
// sequence has no newer matches yet.
package steam
