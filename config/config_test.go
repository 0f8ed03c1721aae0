package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		dir  string
		keys []string
	)

	setenv := func(k, v string) {
		Expect(os.Setenv(k, v)).To(Succeed())
		keys = append(keys, k)
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "config")
		Expect(err).To(BeNil())
		keys = []string{"PORT", "JWT_KEY", "COOLDOWN_SEARCH", "DEVSPACE_MAX_TEAM_SIZE", "SERVER_ALLOWED_ORIGINS"}
	})

	AfterEach(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
		_ = os.RemoveAll(dir)
	})

	Specify("defaults", func() {
		cfg, err := load(filepath.Join(dir, "missing.env"))
		Expect(err).To(BeNil())

		Expect(cfg.Server.Port).To(Equal(5000))
		Expect(cfg.Server.GRPCPort).To(Equal(6969))
		Expect(cfg.Devspace.MaxTeamSize).To(Equal(4))
		Expect(cfg.Devspace.MaxOutstanding).To(Equal(3))
		Expect(cfg.Cooldown.Search).To(Equal(20 * time.Second))
		Expect(cfg.Cooldown.Status).To(Equal(2 * time.Minute))
		Expect(cfg.Cooldown.Profile).To(Equal(5 * time.Minute))
		Expect(cfg.Push.InactiveTimeout).To(Equal(30 * time.Minute))
		Expect(cfg.Auth.JWTKey).To(BeEmpty())
	})

	Specify("environment and legacy names override defaults", func() {
		setenv("PORT", "8080")
		setenv("JWT_KEY", "secret")
		setenv("COOLDOWN_SEARCH", "45s")
		setenv("SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

		cfg, err := load(filepath.Join(dir, "missing.env"))
		Expect(err).To(BeNil())
		Expect(cfg.Server.Port).To(Equal(8080))
		Expect(cfg.ServerAddr()).To(Equal("0.0.0.0:8080"))
		Expect(cfg.Auth.JWTKey).To(Equal("secret"))
		Expect(cfg.Cooldown.Search).To(Equal(45 * time.Second))
		Expect(cfg.Server.AllowedOrigins).To(Equal([]string{"https://a.example", "https://b.example"}))
	})

	Specify("reads a .env file without overriding the environment", func() {
		path := filepath.Join(dir, ".env")
		Expect(os.WriteFile(path, []byte("PORT=7000\nJWT_KEY=from-file\n"), 0o600)).To(Succeed())
		setenv("JWT_KEY", "from-env")

		cfg, err := load(path)
		Expect(err).To(BeNil())
		Expect(cfg.Server.Port).To(Equal(7000))
		Expect(cfg.Auth.JWTKey).To(Equal("from-env"))
	})

	Specify("a .env path that cannot be read is an error", func() {
		_, err := load(dir)
		Expect(err).To(MatchError(ContainSubstring(dir)))
	})

	Specify("rejects a team size below two", func() {
		setenv("DEVSPACE_MAX_TEAM_SIZE", "1")

		_, err := load(filepath.Join(dir, "missing.env"))
		Expect(err).To(MatchError(ContainSubstring("max_team_size")))
	})
})
