// Package seeder generates synthetic normalized records and publishes them
// to a message broker.
package seeder

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/telhawk-systems/reformat/internal/normalizer"
	"github.com/telhawk-systems/reformat/internal/record"
)

var programs = []string{"snoopy", "sshd", "cron", "sudo", "systemd"}

var commands = []string{"ls -la", "cat /etc/passwd", "id", "uname -a", "ps aux", "whoami"}

var binaries = []string{"/usr/bin/ls", "/usr/bin/cat", "/usr/bin/id", "/usr/bin/uname", "/usr/bin/ps"}

// Generator builds envelope records with fake values.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator creates a generator. A zero seed picks a random one.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now}
}

// Record returns one synthetic record in the canonical envelope. Snoopy
// records carry a payload in the simple execution grammar.
func (g *Generator) Record() record.Record {
	f := g.faker
	program := f.RandomString(programs)

	var msg string
	if program == "snoopy" {
		msg = fmt.Sprintf(" [uid:%d sid:%d tty:/dev/pts/%d cwd:/home/%s filename:%s]: %s",
			f.Number(0, 1500), f.Number(1000, 65000), f.Number(0, 9),
			f.Username(), f.RandomString(binaries), f.RandomString(commands))
	} else {
		msg = " " + f.HackerPhrase()
	}

	return record.Record{
		normalizer.KeyTimestamp: g.now().UTC().Format(time.RFC3339Nano),
		normalizer.KeyHost:      f.DomainName(),
		normalizer.KeyProgram:   program,
		normalizer.KeySeverity:  f.RandomString([]string{"info", "notice", "warning", "err"}),
		normalizer.KeyFacility:  f.RandomString([]string{"auth", "authpriv", "daemon", "cron"}),
		normalizer.KeyIP:        f.IPv4Address(),
		normalizer.KeyMessage:   msg,
	}
}
