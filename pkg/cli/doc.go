// Package cli implements estateops-token, the operator command line.
//
// # Commands
//
// issue: mint an access and refresh token pair
//
//	estateops-token issue \
//		--subject user-42 \
//		--email agent@example.com \
//		--role manager \
//		--tenant 6f1c1f0e-8a51-4a49-9a3c-9b6f3b2a6d10 \
//		--scopes read,write
//
// verify: check a token and print the principal it carries
//
//	estateops-token verify --kind access <token>
//
// rules: validate an automation rule file without starting the server
//
//	estateops-token rules --file /etc/estateops/rules.yaml
//
// The signing secret is taken from --secret or ESTATEOPS_TOKEN_SECRET and
// must match the server's.
package cli
