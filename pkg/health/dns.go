package health

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// DNSChecker queries a DNS server and expects an authoritative answer
type DNSChecker struct {
	// Address is the server to query (e.g., "127.0.0.1:53")
	Address string

	// Name is the question name, normally the seed zone
	Name string

	// Net is "udp" or "tcp" (default: udp)
	Net string

	// Timeout is the exchange timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewDNSChecker creates a checker asking address for the A records of name
func NewDNSChecker(address, name string) *DNSChecker {
	return &DNSChecker{
		Address: address,
		Name:    dns.Fqdn(name),
		Net:     "udp",
		Timeout: 5 * time.Second,
	}
}

// Check performs the DNS health check. Any authoritative NOERROR reply is
// healthy, with or without answers.
func (c *DNSChecker) Check(ctx context.Context) Result {
	start := time.Now()

	client := &dns.Client{Net: c.Net, Timeout: c.Timeout}
	req := new(dns.Msg)
	req.SetQuestion(c.Name, dns.TypeA)

	resp, _, err := client.ExchangeContext(ctx, req, c.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("query failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if resp.Rcode != dns.RcodeSuccess || !resp.Authoritative {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("unexpected reply: rcode=%s authoritative=%t", dns.RcodeToString[resp.Rcode], resp.Authoritative),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("%d answers for %s", len(resp.Answer), c.Name),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (c *DNSChecker) Type() CheckType {
	return CheckTypeDNS
}

// WithTimeout sets the exchange timeout
func (c *DNSChecker) WithTimeout(timeout time.Duration) *DNSChecker {
	c.Timeout = timeout
	return c
}
