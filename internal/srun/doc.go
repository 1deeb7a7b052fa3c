// Package srun implements the SRUN3K captive-portal protocol: credential
// encoding, response parsing and the request/response client.
package srun
