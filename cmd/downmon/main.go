package main

import (
	"flag"
	"log"
	"os"
	"reflect"
	"strings"

	"github.com/robotalks/downlink.go/pkg/codec"
	"github.com/robotalks/downlink.go/pkg/link/mqtt"
	"github.com/robotalks/downlink.go/pkg/msgs"
	"github.com/robotalks/downlink.go/pkg/radio/sink"
	"github.com/robotalks/downlink.go/pkg/symbol"
)

var (
	mqttURL = "mqtt://localhost:1883/sat/"
	symbols bool
)

func init() {
	if val := os.Getenv("DOWNLINK_REGISTRY_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.BoolVar(&symbols, "symbols", symbols, "Also summarize symbol streams.")
}

func countSyncs(words []uint32) int {
	var n int
	for i := 0; i < len(words)*symbol.PerWord; i++ {
		if sym := symbol.GetSymbol(words, i); sym == codec.CommaNeg || sym == codec.CommaPos {
			n++
		}
	}
	return n
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.ConnectWait(); err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		switch {
		case strings.HasSuffix(topic, "/"+mqtt.TopicMeta):
			log.Printf("%s: %s", topic, string(payload))
			return
		case strings.HasSuffix(topic, "/"+mqtt.TopicSymbols):
			if !symbols {
				return
			}
			words, err := sink.DecodeWords(payload)
			if err != nil {
				log.Printf("%s: %v", topic, err)
				return
			}
			log.Printf("%s: %d words, %d sync", topic, len(words), countSyncs(words))
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeId, err)
			return
		}
		log.Printf("%s: [%s] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
			msg.(msgs.SerializableMessage).Serializable().String())
	}))
	<-(chan struct{})(nil)
}
