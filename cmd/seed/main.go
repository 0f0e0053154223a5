package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"pgstay/internal/database"
	"pgstay/internal/domain"
	jwtsvc "pgstay/internal/pkg/jwt"
)

var cities = []string{"Bengaluru", "Pune", "Hyderabad", "Chennai", "Gurugram"}

var sharing = []struct {
	kind string
	beds int
}{
	{"single", 1},
	{"double", 2},
	{"triple", 3},
}

func main() {
	dsn := flag.String("db", envOr("DATABASE_URL", "pgstay.db"), "database DSN")
	properties := flag.Int("properties", 5, "number of properties")
	reset := flag.Bool("reset", true, "delete existing bookings, rooms and properties first")
	flag.Parse()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	db, err := database.Connect(*dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("migrate failed:", err)
	}

	if *reset {
		log.Println("Cleaning old data...")
		db.Exec("DELETE FROM webhook_events")
		db.Exec("DELETE FROM bookings")
		db.Exec("DELETE FROM rooms")
		db.Exec("DELETE FROM properties")
	}

	owners := []string{"owner-1", "owner-2"}
	rooms := 0
	for i := 0; i < *properties; i++ {
		owner := owners[i%len(owners)]
		p := domain.Property{
			ID:          fmt.Sprintf("prop-%d", i+1),
			Name:        fmt.Sprintf("Stayzy %s %d", cities[i%len(cities)], i+1),
			City:        cities[i%len(cities)],
			OwnerUserID: owner,
			OwnerName:   fmt.Sprintf("Owner %d", i%len(owners)+1),
			OwnerPhone:  fmt.Sprintf("+9198%08d", r.Intn(100000000)),
			OwnerEmail:  fmt.Sprintf("%s@pgstay.in", owner),
			IsActive:    true,
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
			log.Fatalf("create property %s: %v", p.ID, err)
		}

		for j := 0; j < 2+r.Intn(3); j++ {
			s := sharing[r.Intn(len(sharing))]
			room := domain.Room{
				ID:            uuid.NewString(),
				PropertyID:    p.ID,
				Name:          fmt.Sprintf("Room %d0%d", j/2+1, j+1),
				SharingType:   s.kind,
				TotalBeds:     s.beds,
				AvailableBeds: s.beds,
			}
			if err := db.Create(&room).Error; err != nil {
				log.Fatalf("create room: %v", err)
			}
			rooms++
		}
		log.Printf("Property %s (%s) owner=%s", p.ID, p.Name, owner)
	}

	log.Printf("Seed completed: properties=%d rooms=%d", *properties, rooms)

	// Tokens are issued by the accounts service in production; print dev ones for curl.
	secret := envOr("JWT_SECRET", "change-me-jwt-secret")
	j := jwtsvc.New(secret, 7*24*time.Hour)
	guest, _ := j.GenerateToken("guest-1", "guest")
	owner, _ := j.GenerateToken("owner-1", "owner")
	log.Printf("guest token: %s", guest)
	log.Printf("owner token: %s", owner)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
