// Command seed populates a development database with providers,
// patient logins and linked doctor logins.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/brianvoe/gofakeit/v7"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/types"
)

var specialties = []string{
	"General Practice",
	"Cardiology",
	"Dermatology",
	"Pediatrics",
	"Orthopedics",
	"Neurology",
}

func main() {
	var (
		dsn       string
		providers int
		patients  int
		password  string
	)
	flag.StringVar(&dsn, "dsn", os.Getenv("CARELINK_DSN"), "database connection string")
	flag.IntVar(&providers, "providers", 5, "number of providers to create")
	flag.IntVar(&patients, "patients", 10, "number of patient accounts to create")
	flag.StringVar(&password, "password", "password", "password for all seeded accounts")
	flag.Parse()

	logger := log.New(os.Stderr, "[carelink-seed] ", log.LstdFlags)

	if dsn == "" {
		logger.Fatal("dsn is required")
	}

	db, err := database.NewPgCareLinkRepository(dsn)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("migrate:", err)
	}

	pwdHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("hash password:", err)
	}

	for i := 0; i < providers; i++ {
		name := fmt.Sprintf("Dr. %s %s", gofakeit.FirstName(), gofakeit.LastName())
		provider, err := db.CreateProvider(database.CreateProviderParams{
			Name:      name,
			Specialty: specialties[i%len(specialties)],
		})
		if err != nil {
			logger.Fatal("create provider:", err)
		}

		subject, err := db.CreateSubject(database.CreateSubjectParams{
			EmailAddress:     fmt.Sprintf("doctor%d@carelink.test", i+1),
			DisplayName:      provider.Name,
			Role:             string(types.RoleDoctor),
			LinkedProviderId: provider.Id,
			PasswordHash:     string(pwdHash),
		})
		if err != nil {
			logger.Fatal("create doctor login:", err)
		}

		logger.Printf("provider %q (%s) with login %s", provider.Name, provider.Specialty, subject.EmailAddress)
	}

	for i := 0; i < patients; i++ {
		subject, err := db.CreateSubject(database.CreateSubjectParams{
			EmailAddress: fmt.Sprintf("patient%d@carelink.test", i+1),
			DisplayName:  gofakeit.Name(),
			Role:         string(types.RolePatient),
			PasswordHash: string(pwdHash),
		})
		if err != nil {
			logger.Fatal("create patient login:", err)
		}

		logger.Printf("patient %q with login %s", subject.DisplayName, subject.EmailAddress)
	}

	logger.Printf("seeded %d providers and %d patients, password %q", providers, patients, password)
}
