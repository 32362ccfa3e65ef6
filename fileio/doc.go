// Package fileio reads and writes the stimulus description and layer
// activation files used alongside attribution runs.
package fileio
