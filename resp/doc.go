// Package resp decodes the line-oriented reply protocol spoken by Redis.
//
// The parser is deliberately lenient: array counts are skipped, bulk-string
// lengths are ignored and the line that follows is taken as the value. It is
// used by the redis kernel to turn raw socket replies into cell output.
//
// Usage:
//
//	reply := resp.Parse("*2\r\n:1\r\n:2\r\n")
//	fmt.Println(reply.Text()) // [1 2]
package resp
