// Package config loads the waweb command configuration.
//
// Values are layered, highest precedence first: command flags, WAWEB_*
// environment variables, waweb.yaml, built-in defaults. The file is looked
// up in the working directory and in $HOME/.waweb unless --config names
// one explicitly.
//
// # Configuration File Structure
//
//	data_dir: ~/.waweb
//	client:
//	  url: wss://web.whatsapp.com/ws
//	  proxy: socks5://127.0.0.1:1080
//	  keepalive_interval: 20s
//	  auto_reconnect: true
//	  backoff:
//	    initial: 3s
//	    max: 60s
//	    factor: 1.5
//	    jitter: 0.2
//	    max_attempts: 10
//	crypto:
//	  agreement: x25519
//	  prekey_count: 100
//	store:
//	  backend: sqlite
//	  cache_ttl: 5m
//	  s3:
//	    bucket: waweb-keys
//	    region: eu-west-1
//	log:
//	  level: info
//	  format: console
//	  file: /var/log/waweb.log
//	metrics:
//	  enabled: true
//	  addr: 127.0.0.1:9464
//
// Nested keys map to environment variables with dots replaced by
// underscores: WAWEB_CLIENT_PROXY, WAWEB_STORE_BACKEND.
//
// # Usage
//
//	v := config.NewViper()
//	if err := config.BindFlags(v, cmd.PersistentFlags()); err != nil {
//	    return err
//	}
//	cfg, err := config.Load(v, configPath)
package config
