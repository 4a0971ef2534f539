/*
Package masterfile holds the resource records a DNS seed answers with.

A MasterFile is an ordered list of records queried by name and type. Stored
names may contain wildcard labels, so a single catch-all entry such as
"*.seed.example.com" answers for every host directly below the seed zone.
SeedFile adds persistence: the address records are written as a small JSON
document and read back on the next start.

# Matching

Stored names are patterns. Each label is compared case-insensitively, and a
label that is exactly "*" matches any one non-empty label:

	pattern              candidate                match
	seed.example.com     SEED.example.com.        yes
	*.example.com        foo.example.com          yes
	*.example.com        a.b.example.com          no
	*.example.com        example.com              no

Patterns compile into a list of label matchers, not regular expressions, and
compiled patterns are kept in a bounded LRU cache shared by all master files.

# Persisted format

	[
	  {
	    "IPAddress": "10.0.0.1",
	    "Name": "seed.example.com"
	  },
	  {
	    "IPAddress": "2001:db8::1",
	    "Name": "seed.example.com"
	  }
	]

Only address records are written. On load every record gets the TTL of the
receiving master file. A load that fails for any reason (bad JSON, a missing
field, an unparsable address) leaves the master file untouched.

# Concurrency

Get, Add, Load and Save may be called from different goroutines. Load parses
into a private list and swaps it in, so a concurrent Get sees either the old
or the new entries, never a mix.
*/
package masterfile
