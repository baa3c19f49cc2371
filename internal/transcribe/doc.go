// Package transcribe converts downloaded audio into a timestamped
// transcript. Two engines implement the same contract: a local whisper.cpp
// run and a cloud provider call with normalized timing output.
package transcribe
