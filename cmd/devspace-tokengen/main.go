package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"devspace-backend/jwt"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func main() {
	s := flag.String("key", "", "Key used to sign the access token (JWT_KEY of the server)")
	u := flag.String("user", "", "Hex ObjectID of the user the token is issued for")
	e := flag.String("exp", time.Now().Add(time.Hour*24).Format(time.RFC3339), "RFC3339 time of the expiration date")
	flag.Parse()

	if *s == "" {
		fmt.Println("--key is required")
		os.Exit(1)
	}

	userID, err := primitive.ObjectIDFromHex(*u)
	if err != nil {
		fmt.Println("--user must be a valid ObjectID")
		os.Exit(1)
	}

	exp, err := time.Parse(time.RFC3339, *e)
	if err != nil {
		fmt.Println("--exp invalid time")
		os.Exit(1)
	}

	ss, err := jwt.NewAccessToken(userID, []byte(*s), exp)
	if err != nil {
		fmt.Println("Signing failure:", err)
		os.Exit(1)
	}

	fmt.Println("Token successfully generated:", ss)
}
