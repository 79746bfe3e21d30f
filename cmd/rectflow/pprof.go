package main

import "os"
import "runtime/pprof"

import "github.com/pkg/errors"

var profile *os.File

func startProfile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating profile %s", path)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return errors.Wrap(err, "starting CPU profile")
	}
	profile = f
	return nil
}

func stopProfile() error {
	if profile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := profile.Close()
	profile = nil
	return errors.WithStack(err)
}
