// Package resolver maps aired tracks to destination track identifiers.
//
// A track carrying an embedded destination id is used as is. Otherwise the
// resolver searches the destination for each performer of the track and
// accepts the first candidate whose title and artist both score under the
// configured threshold. Successful lookups are cached by normalized
// artist/title key.
package resolver
