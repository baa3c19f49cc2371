// Command clipnote is the CLI front end for the clipnote daemon. It submits
// conversion jobs, follows their progress, and inspects queue state and
// generated documents over the daemon's HTTP API.
package main
