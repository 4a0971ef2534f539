/*
Package dns serves the seed zone over UDP and TCP using github.com/miekg/dns.

The server is authoritative for exactly one zone. It holds no records of its
own: the seeder swaps a new master file in after every whitelist refresh and
every query is answered from whichever master file is current when it
arrives.

# Answering

	Query name outside the zone     → REFUSED, no answers
	Opcode other than QUERY         → NOTIMP
	No question                     → FORMERR
	Otherwise                       → NOERROR, AA set, answers =
	                                  MasterFile.GetQuestion(q)

Master file names may contain "*" labels. Answers always carry the name that
was asked for, so a record stored under "*.seed.example.com" answers
"node1.seed.example.com." as that name:

	$ dig @127.0.0.1 -p 5353 node1.seed.example.com A
	node1.seed.example.com. 60 IN A 203.0.113.20

UDP replies are truncated to the client's EDNS0 buffer size, or 512 bytes
without EDNS0, and the client retries over TCP.

# Usage

	server, err := dns.NewServer(&dns.Config{
		ListenAddr: ":53",
		Domain:     "seed.example.com",
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	server.SwapMasterFile(seedFile.MasterFile)
*/
package dns
